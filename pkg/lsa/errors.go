//go:build linux

package lsa

import "errors"

// Error kinds returned by the five LSA operations. Every operation returns
// nil on success and one of these (optionally wrapped with %w for an
// underlying OS error) on failure.
var (
	// ErrAlreadyExists is returned by Create and Clone when the calling
	// thread already owns an LSA.
	ErrAlreadyExists = errors.New("lsa: thread already has a storage area")

	// ErrNotFound is returned by Destroy, Read, and Write when the
	// calling thread has no LSA.
	ErrNotFound = errors.New("lsa: thread has no storage area")

	// ErrSourceNotFound is returned by Clone when the named source
	// thread has no LSA.
	ErrSourceNotFound = errors.New("lsa: source thread has no storage area")

	// ErrInvalidSize is returned by Create when size is zero.
	ErrInvalidSize = errors.New("lsa: size must be positive")

	// ErrOutOfBounds is returned by Read and Write when offset+length
	// exceeds the LSA's size, including when the sum wraps around.
	ErrOutOfBounds = errors.New("lsa: offset/length exceeds storage area size")

	// ErrAllocFailed is returned by Create and Write when the OS refuses
	// a page mapping.
	ErrAllocFailed = errors.New("lsa: the operating system refused a page allocation")
)
