// Package modify implements reversible in-process memory modifications: raw
// byte patches, trampoline-based function detours, and the registry that
// tracks every installed modification so it can be queried and undone.
package modify

import (
	"errors"
	"sync"

	"byteweaver/native"
)

var (
	// ErrInvalidArgument is returned by constructors for nil targets,
	// empty payloads, or missing collaborators.
	ErrInvalidArgument = errors.New("invalid modification argument")

	// ErrProtectionDenied is returned when the OS refused a protection
	// change; the OS error is wrapped alongside.
	ErrProtectionDenied = errors.New("memory protection change denied")

	// ErrInvalidRange is returned when an upfront validity check found the
	// target range not committed or not readable. This is the Go stand-in
	// for trapping a hardware fault mid-copy.
	ErrInvalidRange = errors.New("memory range not accessible")

	// ErrNotExecutable is returned when a detour target's pages are not
	// executable.
	ErrNotExecutable = errors.New("target memory not executable")

	// ErrNotFound is returned by registry operations on unknown keys.
	ErrNotFound = errors.New("no modification under key")
)

// Kind is the closed set of modification variants.
type Kind uint8

const (
	KindPatch Kind = iota
	KindDetour
)

// String returns the variant name.
func (k Kind) String() string {
	switch k {
	case KindPatch:
		return "patch"
	case KindDetour:
		return "detour"
	default:
		return "unspecified"
	}
}

// Modification is one reversible memory change. Apply and Restore are
// idempotent: applying an applied modification or restoring a never-applied
// one is a defined no-op success. Implementations are sealed to this package;
// the variant set is fixed at Patch and Detour.
type Modification interface {
	// Apply installs the modification, snapshotting the bytes it replaces.
	Apply() error

	// Restore writes the snapshot back and marks the modification inactive.
	Restore() error

	// Kind reports the variant.
	Kind() Kind

	// Key returns the registry key, empty until registered.
	Key() string

	// GroupID returns the caller-assigned grouping tag.
	GroupID() uint16

	// SetGroupID assigns the grouping tag.
	SetGroupID(id uint16)

	// Target returns the first modified address.
	Target() uintptr

	// Size returns the number of bytes affected.
	Size() uintptr

	// IsModified reports whether Apply succeeded and Restore has not.
	IsModified() bool

	// OriginalBytes returns a copy of the pre-modification snapshot, nil
	// before the first Apply.
	OriginalBytes() []byte

	setKey(key string)
}

// common is the state shared by both variants. The mutex serializes Apply and
// Restore; the manager may hand the same modification to several threads.
type common struct {
	mu       sync.Mutex
	kind     Kind
	target   uintptr
	size     uintptr
	original []byte
	modified bool
	key      string
	groupID  uint16
}

func (c *common) Kind() Kind          { return c.kind }
func (c *common) Key() string         { return c.key }
func (c *common) GroupID() uint16     { return c.groupID }
func (c *common) SetGroupID(id uint16) { c.groupID = id }
func (c *common) Target() uintptr     { return c.target }
func (c *common) setKey(key string)   { c.key = key }

func (c *common) Size() uintptr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *common) IsModified() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modified
}

func (c *common) OriginalBytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.original == nil {
		return nil
	}
	out := make([]byte, len(c.original))
	copy(out, c.original)
	return out
}

// snapshot copies the current bytes at the target. Callers validate the range
// first.
func readBytes(addr, size uintptr) []byte {
	out := make([]byte, size)
	copy(out, native.SliceAt(addr, size))
	return out
}

// writeBytes copies data over the target range. Callers validate the range
// and lift write protection first.
func writeBytes(addr uintptr, data []byte) {
	copy(native.SliceAt(addr, uintptr(len(data))), data)
}

// rangesOverlap tests half-open interval overlap between [a, a+aSize) and
// [b, b+bSize).
func rangesOverlap(a, aSize, b, bSize uintptr) bool {
	return a < b+bSize && b < a+aSize
}
