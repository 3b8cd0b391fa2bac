//go:build linux

package lsa

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOwnerMisuseFaultTerminatesOnlyThatGoroutine reaches past the
// package's API and touches a thread's own LSA memory directly while it
// is protected. The resulting hardware fault must be classified as
// owner misuse and terminate only the goroutine that caused it, never
// the test's own goroutine.
func TestOwnerMisuseFaultTerminatesOnlyThatGoroutine(t *testing.T) {
	tid := ThreadID(92001)
	require.NoError(t, Create(tid, 64))
	defer Destroy(tid)

	reg.Lock()
	l, ok := reg.Lookup(int32(tid))
	reg.Unlock()
	require.True(t, ok)

	base := l.Pages()[0].Base()

	var wg sync.WaitGroup
	wg.Add(1)

	reached := false

	go func() {
		defer wg.Done()

		Guard(tid, func() {
			ptr := (*byte)(unsafe.Pointer(base))
			_ = *ptr
		})

		reached = true
	}()

	wg.Wait()

	assert.False(t, reached)
}

// TestUnrelatedFaultIsNotSwallowed makes sure Guard does not mistake a
// fault against memory the thread does not own for owner misuse: it
// must propagate rather than silently terminate the goroutine.
func TestUnrelatedFaultIsNotSwallowed(t *testing.T) {
	owner := ThreadID(92002)
	bystander := ThreadID(92003)

	require.NoError(t, Create(owner, 64))
	defer Destroy(owner)

	reg.Lock()
	l, ok := reg.Lookup(int32(owner))
	reg.Unlock()
	require.True(t, ok)

	base := l.Pages()[0].Base()

	var recovered interface{}

	func() {
		defer func() {
			recovered = recover()
		}()

		Guard(bystander, func() {
			ptr := (*byte)(unsafe.Pointer(base))
			_ = *ptr
		})
	}()

	assert.NotNil(t, recovered, "a fault against memory bystander does not own must propagate")
}
