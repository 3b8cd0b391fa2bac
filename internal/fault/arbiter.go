//go:build linux

// Package fault implements the FaultArbiter: the boundary that recovers a
// synchronous memory-protection fault and decides whether it was the
// owning thread misusing its own storage (terminate it) or anything else
// (propagate, matching the signal's default disposition).
//
// Go has no reliable way to install a sigaction-style handler for a
// synchronous SIGSEGV/SIGBUS the program itself raises and resume past it;
// signal.Notify only delivers asynchronous signals. The documented
// Go-native mechanism is runtime/debug.SetPanicOnFault, which turns such a
// fault into a panic carrying the faulting address, recoverable on the
// faulting goroutine's own stack. This package builds the arbiter on top
// of that mechanism instead of replicating a C-style signal handler.
package fault

import (
	"runtime"
	"runtime/debug"
)

// Classifier answers whether the page based at pageBase belongs to tid's
// own LSA. *registry.Registry implements this.
type Classifier interface {
	FaultOwner(tid int32, pageBase uintptr) bool
}

// addresser is the interface the Go runtime's fault panics satisfy once
// debug.SetPanicOnFault is set.
type addresser interface {
	Addr() uintptr
}

// Arbiter is the process-wide fault arbiter. One is created per Registry
// and shared by every goroutine that calls Guard.
type Arbiter struct {
	classifier Classifier
	pageMask   uintptr
}

// New returns an Arbiter that classifies faults against classifier, aligning
// addresses down to pageSize.
func New(classifier Classifier, pageSize int) *Arbiter {
	return &Arbiter{classifier: classifier, pageMask: ^(uintptr(pageSize) - 1)}
}

// Guard runs fn as tid's protected region. Code that might touch raw
// LSA-backed memory outside the five API operations must run inside a
// Guard call. If fn raises a synchronous memory-protection fault on a page
// belonging to tid's own LSA, Guard terminates the calling goroutine with
// runtime.Goexit — the language-level stand-in for "terminate the
// offending thread deterministically" — running fn's own deferred cleanup
// first and leaving every other goroutine untouched. Any other fault (a
// different thread's LSA, or not LSA memory at all) is re-panicked,
// matching the spec's "restore default disposition and re-raise."
//
// debug.SetPanicOnFault only ever applies to the goroutine that calls it,
// and the runtime clears it when that goroutine exits — it is not a
// process-wide switch and is never inherited by a child goroutine. Guard
// therefore sets it fresh on every call, on whatever goroutine is calling,
// and restores whatever value was in effect before it returns; relying on
// a single process-wide install would leave every goroutine but the first
// caller with panic-on-fault off, so a fault there would fall straight
// through to a fatal, unrecoverable runtime crash instead of this
// classification.
func (a *Arbiter) Guard(tid int32, fn func()) {
	prev := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(prev)

	defer func() {
		r := recover()
		if r == nil {
			return
		}

		ad, ok := r.(addresser)
		if !ok {
			panic(r)
		}

		pageBase := ad.Addr() & a.pageMask
		if a.classifier.FaultOwner(tid, pageBase) {
			runtime.Goexit()
		}

		panic(r)
	}()

	fn()
}
