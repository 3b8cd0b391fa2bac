//go:build linux

// Package lsa implements the Local Storage Area: a per-thread private
// byte-addressable region backed by OS-protected pages, with
// copy-on-write sharing between clones and a fault arbiter that kills a
// thread caught touching its own storage outside this package's API.
package lsa

import (
	"fmt"
	"sync"

	"github.com/pagefault/lsa/internal/fault"
	"github.com/pagefault/lsa/internal/page"
	"github.com/pagefault/lsa/internal/registry"
	"github.com/pagefault/lsa/internal/store"
)

var (
	initOnce sync.Once
	reg      *registry.Registry
	arbiter  *fault.Arbiter

	// allocatePage is a seam for tests that need to force an allocation
	// failure partway through Create (see the partial-allocation-rollback
	// scenario); production code always uses page.Allocate.
	allocatePage = page.Allocate
)

func ensureInit() {
	initOnce.Do(func() {
		reg = registry.New()
		arbiter = fault.New(reg, page.Size())
	})
}

// Guard runs fn as tid's protected region, per internal/fault's Arbiter.
// Code that touches raw LSA-backed memory outside Read/Write/Create/
// Destroy/Clone must be wrapped in a Guard call to be classified as
// owner misuse rather than crash the process outright. Guard arms
// panic-on-fault fresh on whatever goroutine calls it — that setting is
// per-goroutine and never inherited by a child goroutine, so every
// goroutine that may fault on its own LSA must call Guard itself.
func Guard(tid ThreadID, fn func()) {
	ensureInit()
	arbiter.Guard(int32(tid), fn)
}

// Create allocates a new LSA of size bytes for tid. size must be
// positive. On partial allocation failure, every page allocated so far
// for this call is freed before returning.
func Create(tid ThreadID, size uint64) error {
	ensureInit()

	if size == 0 {
		return ErrInvalidSize
	}

	reg.Lock()
	defer reg.Unlock()

	if _, exists := reg.Lookup(int32(tid)); exists {
		return ErrAlreadyExists
	}

	count := store.PageCountForSize(size, page.Size())

	pages := make([]*page.Page, 0, count)
	for i := 0; i < count; i++ {
		p, err := allocatePage()
		if err != nil {
			for _, alloc := range pages {
				alloc.Free()
			}

			return fmt.Errorf("%w: %v", ErrAllocFailed, err)
		}

		pages = append(pages, p)
	}

	reg.Insert(int32(tid), store.New(int32(tid), size, pages))

	return nil
}

// Destroy releases tid's LSA. Every page whose reference count drops to
// zero is unmapped; a still-shared page only has its count decremented.
func Destroy(tid ThreadID) error {
	ensureInit()

	reg.Lock()
	defer reg.Unlock()

	l, ok := reg.Lookup(int32(tid))
	if !ok {
		return ErrNotFound
	}

	for _, p := range l.Pages() {
		if p.Release() == 0 {
			p.Free()
		}
	}

	reg.Remove(int32(tid))

	return nil
}

// Read copies length bytes starting at offset out of tid's LSA into out,
// which must be at least length bytes long.
//
// The unprotect, copy and reprotect run under the registry lock: a shared
// page's protection is process-wide, so another sharer's Read or Write
// reprotecting it mid-copy would otherwise fault this one.
func Read(tid ThreadID, offset, length uint64, out []byte) error {
	ensureInit()

	l, err := lookupOwn(tid)
	if err != nil {
		return err
	}

	if err := checkBounds(offset, length, l.Size); err != nil {
		return err
	}

	if length == 0 {
		return nil
	}

	reg.Lock()
	defer reg.Unlock()

	l.UnprotectAll()
	defer l.ProtectAll()

	ps := uint64(page.Size())
	pages := l.Pages()

	for i := uint64(0); i < length; i++ {
		idx := offset + i
		out[i] = pages[idx/ps].Bytes()[idx%ps]
	}

	return nil
}

// Write copies length bytes from in into tid's LSA starting at offset.
// Every page the range touches that is currently shared (reference count
// greater than one) is split into a private copy before any byte is
// written, one split check per page the range crosses.
//
// The split check-then-act and the byte writes that follow it run under
// the same registry lock Clone holds while it reads and retains a
// source's pages. Without that, a concurrent Clone could retain a page
// this Write already decided not to split, landing the clone on the
// same physical page Write is about to mutate in place. The unprotect and
// reprotect of the LSA's pages run under that lock too, for the same
// reason as in Read.
func Write(tid ThreadID, offset, length uint64, in []byte) error {
	ensureInit()

	l, err := lookupOwn(tid)
	if err != nil {
		return err
	}

	if err := checkBounds(offset, length, l.Size); err != nil {
		return err
	}

	if length == 0 {
		return nil
	}

	reg.Lock()
	defer reg.Unlock()

	l.UnprotectAll()
	defer l.ProtectAll()

	ps := uint64(page.Size())
	startPage := offset / ps
	endPage := (offset + length - 1) / ps

	l.Lock()
	for pn := startPage; pn <= endPage; pn++ {
		cur := l.Pages()[pn]
		if cur.RefCount() <= 1 {
			continue
		}

		replacement, err := allocatePage()
		if err != nil {
			l.Unlock()

			return fmt.Errorf("%w: %v", ErrAllocFailed, err)
		}

		replacement.Unprotect()
		page.CopyInto(replacement, cur)
		cur.Release()
		cur.Protect()
		l.ReplacePage(int(pn), replacement)
	}
	l.Unlock()

	pages := l.Pages()
	for i := uint64(0); i < length; i++ {
		idx := offset + i
		pages[idx/ps].Bytes()[idx%ps] = in[i]
	}

	return nil
}

// Clone allocates a new LSA for tid that shares every page of source's
// LSA, incrementing each page's reference count. tid must not already
// own an LSA; source must.
func Clone(tid ThreadID, source ThreadID) error {
	ensureInit()

	reg.Lock()
	defer reg.Unlock()

	if _, exists := reg.Lookup(int32(tid)); exists {
		return ErrAlreadyExists
	}

	src, ok := reg.Lookup(int32(source))
	if !ok {
		return ErrSourceNotFound
	}

	pages := src.Pages()
	for _, p := range pages {
		p.Retain()
	}

	reg.Insert(int32(tid), store.New(int32(tid), src.Size, pages))

	return nil
}

func lookupOwn(tid ThreadID) (*store.LSA, error) {
	reg.Lock()
	l, ok := reg.Lookup(int32(tid))
	reg.Unlock()

	if !ok {
		return nil, ErrNotFound
	}

	return l, nil
}

func checkBounds(offset, length, size uint64) error {
	end := offset + length
	if end < offset || end > size {
		return ErrOutOfBounds
	}

	return nil
}
