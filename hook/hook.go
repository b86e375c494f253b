// Package hook defines the contract a function-redirection provider must
// satisfy. The library does not generate trampolines itself; it drives a
// provider through a begin/attach/commit transaction and records enough state
// to undo the redirection later.
package hook

import (
	"errors"
	"fmt"
)

// ErrTransactionFailed wraps any provider rejection of an attach, detach, or
// commit.
var ErrTransactionFailed = errors.New("hook transaction failed")

// CommitError carries the provider's failure reason together with the
// function-pointer slot it was processing when the commit fell over.
type CommitError struct {
	Pointer *uintptr
	Reason  string
}

func (e *CommitError) Error() string {
	if e.Pointer != nil {
		return fmt.Sprintf("commit failed at slot %p (-> %#x): %s", e.Pointer, *e.Pointer, e.Reason)
	}
	return fmt.Sprintf("commit failed: %s", e.Reason)
}

func (e *CommitError) Unwrap() error { return ErrTransactionFailed }

// Transaction is one pending batch of redirection changes. Attach and Detach
// stage work; Commit applies it atomically or fails as a unit; Abort discards
// everything staged. A transaction is single-use.
type Transaction interface {
	// Attach stages a redirection: *slot currently holds the target entry
	// point, and after a successful commit holds the trampoline through
	// which callers reach the original behavior.
	Attach(slot *uintptr, detour uintptr) error

	// Detach stages removal of a previously committed redirection.
	Detach(slot *uintptr, detour uintptr) error

	// Commit applies all staged changes. On failure the returned error
	// unwraps to ErrTransactionFailed and is a *CommitError when the
	// provider can name the offending slot.
	Commit() error

	// Abort discards the staged changes.
	Abort()
}

// Provider creates hook transactions and reports the platform's minimum
// trampoline footprint in bytes.
type Provider interface {
	Begin() (Transaction, error)
	MinFootprint() int
}

const (
	// MinFootprint64 is the byte floor a 64-bit absolute-jump detour needs
	// at the target's entry point.
	MinFootprint64 = 14

	// MinFootprint32 is the 32-bit relative-jmp floor.
	MinFootprint32 = 5
)
