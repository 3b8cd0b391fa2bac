//go:build linux

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagefault/lsa/internal/page"
)

func newTestPages(t *testing.T, n int) []*page.Page {
	t.Helper()

	pages := make([]*page.Page, n)
	for i := range pages {
		p, err := page.Allocate()
		require.NoError(t, err)

		t.Cleanup(p.Free)
		pages[i] = p
	}

	return pages
}

func TestPageCountForSize(t *testing.T) {
	ps := page.Size()

	assert.Equal(t, 1, PageCountForSize(1, ps))
	assert.Equal(t, 1, PageCountForSize(uint64(ps), ps))
	assert.Equal(t, 2, PageCountForSize(uint64(ps)+1, ps))
}

func TestUnprotectAllProtectAllRoundTrip(t *testing.T) {
	pages := newTestPages(t, 3)
	l := New(1, uint64(3*page.Size()), pages)

	assert.True(t, l.AllProtected())

	l.UnprotectAll()
	assert.False(t, l.AllProtected())

	l.ProtectAll()
	assert.True(t, l.AllProtected())
}

func TestReplacePagePublishesNewSnapshot(t *testing.T) {
	pages := newTestPages(t, 2)
	l := New(1, uint64(2*page.Size()), pages)

	original := l.Pages()

	replacement, err := page.Allocate()
	require.NoError(t, err)
	t.Cleanup(replacement.Free)

	l.Lock()
	l.ReplacePage(0, replacement)
	l.Unlock()

	assert.Same(t, replacement, l.Pages()[0])
	assert.Same(t, original[0], pages[0])
	assert.Same(t, original[1], l.Pages()[1])
}
