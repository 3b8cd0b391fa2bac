//go:build linux

package lsa

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// ThreadID names a participating OS thread. The C original names threads
// with pthread_self(); a goroutine is not an OS thread, so a goroutine
// that intends to own an LSA must pin itself to one with BindThread
// before calling any other operation in this package.
type ThreadID int32

// BindThread locks the calling goroutine to its current OS thread for the
// rest of its life and returns that thread's kernel id — the identity
// every other operation in this package is keyed on. Call it once per
// goroutine that will own an LSA, before Create or Clone.
func BindThread() ThreadID {
	runtime.LockOSThread()

	return ThreadID(unix.Gettid())
}

// UnbindThread releases the OS thread BindThread pinned. Call it only
// after Destroy has released the thread's storage area; calling it
// earlier does not itself corrupt anything, but a goroutine that later
// resumes on a different OS thread would no longer name the LSA it used
// to own.
func UnbindThread() {
	runtime.UnlockOSThread()
}
