//go:build linux

// Package page wraps the OS primitives one LSA page frame is built from:
// anonymous mapping, protection toggling, unmapping, and the raw byte copy
// a CoW split needs. Everything here touches untyped, OS-protected memory;
// callers above this package work with *Page and never see a raw address.
package page

import (
	"fmt"
	"log"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

var pageSize = unix.Getpagesize()

// Size returns the OS page size every Page in the process is sized to.
func Size() int {
	return pageSize
}

const (
	protectedProt   = unix.PROT_NONE
	unprotectedProt = unix.PROT_READ | unix.PROT_WRITE
)

// Page describes one OS page frame: its backing mapping and the number of
// LSAs currently sharing it.
type Page struct {
	mem      []byte
	refCount atomic.Int32
}

// Allocate maps a fresh anonymous page with protection none and a
// reference count of one. Anonymous mappings are zero-filled by the
// kernel, so a freshly allocated page never leaks a prior tenant's bytes.
func Allocate() (*Page, error) {
	mem, err := unix.Mmap(-1, 0, pageSize, protectedProt, unix.MAP_ANONYMOUS|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap page: %w", err)
	}

	p := &Page{mem: mem}
	p.refCount.Store(1)

	return p, nil
}

// Free unmaps the page. The caller must already know no LSA references it
// (RefCount reached zero); an unmap failure here means the accounting the
// rest of the system relies on has already gone wrong, so it is fatal.
func (p *Page) Free() {
	if err := unix.Munmap(p.mem); err != nil {
		log.Fatalf("page: munmap failed on a page believed owned: %v", err)
	}
}

// Protect sets the page's protection to none. Fatal on failure: the
// system believes it owns this page, so a refusal means corrupted
// accounting somewhere upstream.
func (p *Page) Protect() {
	if err := unix.Mprotect(p.mem, protectedProt); err != nil {
		log.Fatalf("page: mprotect(none) failed on a page believed owned: %v", err)
	}
}

// Unprotect sets the page's protection to read|write. Fatal on failure,
// for the same reason as Protect.
func (p *Page) Unprotect() {
	if err := unix.Mprotect(p.mem, unprotectedProt); err != nil {
		log.Fatalf("page: mprotect(rw) failed on a page believed owned: %v", err)
	}
}

// Base returns the page's base virtual address, used only to classify
// page faults against the registry.
func (p *Page) Base() uintptr {
	return uintptr(unsafe.Pointer(&p.mem[0]))
}

// Bytes exposes the page's backing memory. The caller must have already
// unprotected the page; indexing into it while protected raises a real
// page fault.
func (p *Page) Bytes() []byte {
	return p.mem
}

// RefCount reports how many LSAs currently share this page.
func (p *Page) RefCount() int32 {
	return p.refCount.Load()
}

// Retain increments the reference count on behalf of a new sharer (clone).
func (p *Page) Retain() {
	p.refCount.Add(1)
}

// Release decrements the reference count on behalf of a departing sharer
// (destroy or a CoW split dropping the original) and returns the count
// that remains.
func (p *Page) Release() int32 {
	return p.refCount.Add(-1)
}

// CopyInto copies a full page's worth of bytes from src into dst. Both
// pages must already be unprotected.
func CopyInto(dst, src *Page) {
	copy(dst.mem, src.mem)
}
