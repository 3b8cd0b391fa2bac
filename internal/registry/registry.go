//go:build linux

// Package registry is the process-wide map from thread identity to LSA.
// It keeps two views of the same data: a mutex-guarded authoritative map
// regular API calls use, and an atomically-published snapshot the fault
// arbiter reads without ever blocking or allocating.
package registry

import (
	"sync"
	"sync/atomic"

	"github.com/pagefault/lsa/internal/store"
)

// Registry is the global thread-id -> LSA association.
type Registry struct {
	mu    sync.Mutex
	byTid map[int32]*store.LSA
	snap  atomic.Pointer[map[int32]*store.LSA]
}

// New returns an empty Registry.
func New() *Registry {
	r := &Registry{byTid: make(map[int32]*store.LSA)}
	r.publish()

	return r
}

func (r *Registry) publish() {
	cp := make(map[int32]*store.LSA, len(r.byTid))
	for tid, l := range r.byTid {
		cp[tid] = l
	}

	r.snap.Store(&cp)
}

// Lock serializes a compound check-then-act sequence (create, destroy,
// clone, the CoW-split decision in write) against other such sequences.
func (r *Registry) Lock() {
	r.mu.Lock()
}

// Unlock releases the lock taken by Lock.
func (r *Registry) Unlock() {
	r.mu.Unlock()
}

// Insert adds or replaces tid's LSA. Callers must hold Lock.
func (r *Registry) Insert(tid int32, l *store.LSA) {
	r.byTid[tid] = l
	r.publish()
}

// Remove deletes tid's entry, if any. Callers must hold Lock.
func (r *Registry) Remove(tid int32) {
	delete(r.byTid, tid)
	r.publish()
}

// Lookup returns tid's LSA. Callers must hold Lock.
func (r *Registry) Lookup(tid int32) (*store.LSA, bool) {
	l, ok := r.byTid[tid]

	return l, ok
}

// Len reports how many LSAs are currently registered. Callers must hold Lock.
func (r *Registry) Len() int {
	return len(r.byTid)
}

// FaultOwner is the fault-path lookup: lock-free and allocation-free. It
// answers whether the page based at pageBase belongs to tid's own LSA.
// Invariant 1 (at most one LSA per thread) means this is equivalent to the
// original's "scan every LSA for this page, then check the owner" and
// cheaper: a single map lookup on tid followed by a scan of one LSA's
// pages.
func (r *Registry) FaultOwner(tid int32, pageBase uintptr) bool {
	snap := r.snap.Load()
	if snap == nil {
		return false
	}

	l, ok := (*snap)[tid]
	if !ok {
		return false
	}

	for _, p := range l.Pages() {
		if p.Base() == pageBase {
			return true
		}
	}

	return false
}
