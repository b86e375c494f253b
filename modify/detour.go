package modify

import (
	"errors"
	"fmt"
	"math/bits"

	"byteweaver/hook"
	"byteweaver/logging"
	"byteweaver/native"
)

// maxInstructionLen is the longest legal x86 instruction. The detour size
// probe reads the footprint plus one maximal instruction so the final
// instruction straddling the footprint boundary can always be decoded.
const maxInstructionLen = 15

// Detour redirects a function entry point to a replacement through an
// external hook-transaction provider. The provider fills the original-slot
// pointer with the trampoline address callers use to reach unhooked behavior.
type Detour struct {
	common
	slot     *uintptr
	detourFn uintptr
	mem      native.Memory
	provider hook.Provider
}

// NewDetour builds a detour for target. slot must point at a variable seeded
// with the target entry point; after Apply it holds the trampoline. The
// relocation size is computed here from the target's instruction boundaries,
// covering at least the provider's minimum footprint.
func NewDetour(mem native.Memory, provider hook.Provider, target uintptr, slot *uintptr, detourFn uintptr) (*Detour, error) {
	if mem == nil || provider == nil {
		return nil, fmt.Errorf("%w: nil collaborator", ErrInvalidArgument)
	}
	if target == 0 || detourFn == 0 || slot == nil {
		return nil, fmt.Errorf("%w: nil function pointer", ErrInvalidArgument)
	}

	footprint := provider.MinFootprint()
	probe := uintptr(footprint + maxInstructionLen)
	if !native.RangeValid(mem, target, probe) {
		return nil, fmt.Errorf("%w: %#x+%#x", ErrInvalidRange, target, probe)
	}

	size, err := hook.PatchSize(readBytes(target, probe), bits.UintSize, footprint)
	if err != nil {
		return nil, fmt.Errorf("cannot size detour at %#x: %w", target, err)
	}

	d := &Detour{slot: slot, detourFn: detourFn, mem: mem, provider: provider}
	d.kind = KindDetour
	d.target = target
	d.size = uintptr(size)
	logging.Debugf("[detour] patch size %d for %#x", size, target)
	return d, nil
}

// OriginalSlot returns the pointer the provider fills with the pass-through
// entry point.
func (d *Detour) OriginalSlot() *uintptr { return d.slot }

// DetourFunction returns the replacement entry point.
func (d *Detour) DetourFunction() uintptr { return d.detourFn }

// Apply installs the redirection inside a provider transaction. Applying an
// installed detour is a no-op success.
func (d *Detour) Apply() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.modified {
		return nil
	}

	region, err := d.mem.Query(d.target)
	if err != nil || !region.Prot.CanExecute() {
		logging.Errorf("[detour] %s: target %#x is not executable", d.key, d.target)
		return fmt.Errorf("%w: %#x", ErrNotExecutable, d.target)
	}

	if !native.RangeValid(d.mem, d.target, d.size) {
		logging.Errorf("[detour] %s: range %#x+%#x not accessible", d.key, d.target, d.size)
		return fmt.Errorf("%w: %#x+%#x", ErrInvalidRange, d.target, d.size)
	}
	d.original = readBytes(d.target, d.size)

	tx, err := d.provider.Begin()
	if err != nil {
		logging.Errorf("[detour] %s: failed to open transaction: %v", d.key, err)
		return fmt.Errorf("%w: %w", hook.ErrTransactionFailed, err)
	}

	if err := tx.Attach(d.slot, d.detourFn); err != nil {
		tx.Abort()
		logging.Errorf("[detour] %s: attach failed for %#x -> %#x: %v", d.key, d.target, d.detourFn, err)
		return fmt.Errorf("%w: %w", hook.ErrTransactionFailed, err)
	}

	if err := tx.Commit(); err != nil {
		tx.Abort()
		logging.Errorf("[detour] %s: commit failed for %#x -> %#x: %v", d.key, d.target, d.detourFn, err)
		if errors.Is(err, hook.ErrTransactionFailed) {
			return err
		}
		return fmt.Errorf("%w: %w", hook.ErrTransactionFailed, err)
	}

	d.modified = true
	logging.Debugf("[detour] applied %s: %#x -> %#x", d.key, d.target, d.detourFn)
	return nil
}

// Restore detaches the redirection inside a provider transaction. Restoring
// a never-applied detour is a no-op success.
func (d *Detour) Restore() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.modified {
		return nil
	}

	tx, err := d.provider.Begin()
	if err != nil {
		logging.Errorf("[detour] %s: failed to open transaction: %v", d.key, err)
		return fmt.Errorf("%w: %w", hook.ErrTransactionFailed, err)
	}

	if err := tx.Detach(d.slot, d.detourFn); err != nil {
		tx.Abort()
		logging.Errorf("[detour] %s: detach failed for %#x: %v", d.key, d.target, err)
		return fmt.Errorf("%w: %w", hook.ErrTransactionFailed, err)
	}

	if err := tx.Commit(); err != nil {
		tx.Abort()
		logging.Errorf("[detour] %s: commit failed while restoring %#x: %v", d.key, d.target, err)
		if errors.Is(err, hook.ErrTransactionFailed) {
			return err
		}
		return fmt.Errorf("%w: %w", hook.ErrTransactionFailed, err)
	}

	d.modified = false
	logging.Debugf("[detour] restored %s at %#x", d.key, d.target)
	return nil
}
