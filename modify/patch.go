package modify

import (
	"fmt"

	"byteweaver/logging"
	"byteweaver/native"
)

// Patch overwrites a byte range with caller-supplied bytes, keeping the
// original bytes so the change can be undone.
type Patch struct {
	common
	patchBytes []byte
	mem        native.Memory
}

// NewPatch builds a patch over [target, target+len(patchBytes)). The target
// and payload are validated here; actual memory access is deferred to Apply.
func NewPatch(mem native.Memory, target uintptr, patchBytes []byte) (*Patch, error) {
	if mem == nil {
		return nil, fmt.Errorf("%w: nil memory interface", ErrInvalidArgument)
	}
	if target == 0 {
		return nil, fmt.Errorf("%w: zero target address", ErrInvalidArgument)
	}
	if len(patchBytes) == 0 {
		return nil, fmt.Errorf("%w: empty patch bytes", ErrInvalidArgument)
	}

	owned := make([]byte, len(patchBytes))
	copy(owned, patchBytes)

	p := &Patch{patchBytes: owned, mem: mem}
	p.kind = KindPatch
	p.target = target
	p.size = uintptr(len(owned))
	return p, nil
}

// PatchBytes returns a copy of the replacement bytes.
func (p *Patch) PatchBytes() []byte {
	out := make([]byte, len(p.patchBytes))
	copy(out, p.patchBytes)
	return out
}

// Apply writes the patch bytes over the target, snapshotting the bytes they
// replace. Applying an already-applied patch is a no-op success.
func (p *Patch) Apply() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.modified {
		return nil
	}

	if !native.RangeValid(p.mem, p.target, p.size) {
		logging.Errorf("[patch] %s: range %#x+%#x not accessible", p.key, p.target, p.size)
		return fmt.Errorf("%w: %#x+%#x", ErrInvalidRange, p.target, p.size)
	}

	oldProt, err := p.mem.Protect(p.target, p.size, native.ProtRWX)
	if err != nil {
		logging.Errorf("[patch] %s: failed to set permissions at %#x (size %d): %v",
			p.key, p.target, p.size, err)
		return fmt.Errorf("%w at %#x+%#x: %w", ErrProtectionDenied, p.target, p.size, err)
	}

	p.original = readBytes(p.target, p.size)
	writeBytes(p.target, p.patchBytes)

	if _, err := p.mem.Protect(p.target, p.size, oldProt); err != nil {
		logging.Warnf("[patch] %s: failed to restore protection %v at %#x: %v",
			p.key, oldProt, p.target, err)
	}
	if err := p.mem.FlushICache(p.target, p.size); err != nil {
		logging.Warnf("[patch] %s: instruction cache flush failed at %#x: %v", p.key, p.target, err)
	}

	p.modified = true
	logging.Debugf("[patch] applied %s at %#x (%d bytes)", p.key, p.target, p.size)
	return nil
}

// Restore writes the snapshot back. Restoring a never-applied patch is a
// no-op success; a failed restore leaves the patch marked modified so the
// caller can retry.
func (p *Patch) Restore() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.modified {
		return nil
	}

	if !native.RangeValid(p.mem, p.target, p.size) {
		logging.Errorf("[patch] %s: range %#x+%#x not accessible for restore", p.key, p.target, p.size)
		return fmt.Errorf("%w: %#x+%#x", ErrInvalidRange, p.target, p.size)
	}

	oldProt, err := p.mem.Protect(p.target, p.size, native.ProtRWX)
	if err != nil {
		logging.Errorf("[patch] %s: failed to set permissions at %#x (size %d): %v",
			p.key, p.target, p.size, err)
		return fmt.Errorf("%w at %#x+%#x: %w", ErrProtectionDenied, p.target, p.size, err)
	}

	writeBytes(p.target, p.original)

	if _, err := p.mem.Protect(p.target, p.size, oldProt); err != nil {
		logging.Warnf("[patch] %s: failed to restore protection %v at %#x: %v",
			p.key, oldProt, p.target, err)
	}
	if err := p.mem.FlushICache(p.target, p.size); err != nil {
		logging.Warnf("[patch] %s: instruction cache flush failed at %#x: %v", p.key, p.target, err)
	}

	p.modified = false
	logging.Debugf("[patch] restored %s at %#x (%d bytes)", p.key, p.target, p.size)
	return nil
}
