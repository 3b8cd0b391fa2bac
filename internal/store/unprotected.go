//go:build linux

package store

import (
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// unprotectedSet tracks, per page index, whether Read/Write currently holds
// that page unprotected. It exists purely as a debug assertion: invariant 3
// says every page sits at protection none between API calls, and tests use
// it (through LSA.AllProtected) to check that an LSA is left fully
// protected. Read/Write only set and clear bits; they never check them. Adapted
// from the teacher's block-marker bitset, here keyed by page index instead
// of cache block offset.
type unprotectedSet struct {
	bits bitset.BitSet
	mu   sync.Mutex
}

func (u *unprotectedSet) mark(pageIndex int) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.bits.Set(uint(pageIndex))
}

func (u *unprotectedSet) clear(pageIndex int) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.bits.Clear(uint(pageIndex))
}

func (u *unprotectedSet) allClear() bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.bits.None()
}
