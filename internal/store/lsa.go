//go:build linux

// Package store holds the LSA record itself: a thread's declared size,
// page count, and the ordered page list the rest of the system shares or
// splits. It has no notion of thread identity beyond the owner field the
// registry keys on.
package store

import (
	"sync"
	"sync/atomic"

	"github.com/pagefault/lsa/internal/page"
)

// LSA is one thread's Local Storage Area.
type LSA struct {
	Owner int32
	Size  uint64

	mu    sync.Mutex
	pages atomic.Pointer[[]*page.Page]
	guard unprotectedSet
}

// New builds an LSA owned by owner over the given page list. pages is
// copied so the caller's slice can be reused or discarded.
func New(owner int32, size uint64, pages []*page.Page) *LSA {
	l := &LSA{Owner: owner, Size: size}
	l.setPages(pages)

	return l
}

// PageCountForSize returns the number of pageSize-sized pages needed to
// back size bytes, rounding up.
func PageCountForSize(size uint64, pageSize int) int {
	ps := uint64(pageSize)

	return int((size + ps - 1) / ps)
}

// PageCount returns the number of pages currently backing the LSA.
func (l *LSA) PageCount() int {
	return len(l.Pages())
}

// Pages returns the current page list. The returned slice is a stable
// snapshot: callers that hold onto it will not observe a later CoW
// replacement. Safe to call without Lock, including from the fault path.
func (l *LSA) Pages() []*page.Page {
	p := l.pages.Load()
	if p == nil {
		return nil
	}

	return *p
}

func (l *LSA) setPages(pages []*page.Page) {
	cp := append([]*page.Page(nil), pages...)
	l.pages.Store(&cp)
}

// Lock serializes structural mutation of the page list (CoW installs).
// Write holds it for its whole split loop, including the page allocations
// and protection changes there; Clone does not take it and is serialized
// against Write by the registry lock instead.
func (l *LSA) Lock() {
	l.mu.Lock()
}

// Unlock releases the lock taken by Lock.
func (l *LSA) Unlock() {
	l.mu.Unlock()
}

// ReplacePage installs replacement at idx, publishing a new page-list
// snapshot. Callers must hold Lock.
func (l *LSA) ReplacePage(idx int, replacement *page.Page) {
	cur := l.Pages()
	next := append([]*page.Page(nil), cur...)
	next[idx] = replacement
	l.pages.Store(&next)
}

// UnprotectAll unprotects every page of the LSA and marks each as
// currently exposed, for the AllProtected debug assertion.
func (l *LSA) UnprotectAll() {
	for i, p := range l.Pages() {
		p.Unprotect()
		l.guard.mark(i)
	}
}

// ProtectAll reprotects every page of the LSA and clears the exposure
// bitmap. Read/Write defer it right after UnprotectAll, so it runs on every
// exit path that follows the unprotect, including an allocation-failure
// return, and invariant 3 holds the instant the call returns.
func (l *LSA) ProtectAll() {
	for i, p := range l.Pages() {
		p.Protect()
		l.guard.clear(i)
	}
}

// AllProtected reports whether every page of the LSA is currently marked
// protected. Used only by tests asserting invariant 3.
func (l *LSA) AllProtected() bool {
	return l.guard.allClear()
}
