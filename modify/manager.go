package modify

import (
	"errors"
	"fmt"
	"sync"

	"byteweaver/hook"
	"byteweaver/logging"
	"byteweaver/native"
)

// Manager is the registry of installed modifications. Keys move through
// unregistered -> registered/inactive -> registered/active and back; Erase
// removes a key without restoring it, RestoreAndErase does both.
//
// The registry lock is held only around the map. Apply, Restore, scans, and
// every other slow or fault-prone operation run on snapshots taken under the
// lock, or on values already detached from it.
type Manager struct {
	mu       sync.RWMutex
	mods     map[string]Modification
	mem      native.Memory
	provider hook.Provider
}

// NewManager builds an empty registry. The memory interface and hook provider
// are used by the CreatePatch and CreateDetour conveniences; provider may be
// nil when only patches are created through the manager.
func NewManager(mem native.Memory, provider hook.Provider) *Manager {
	return &Manager{
		mods:     make(map[string]Modification),
		mem:      mem,
		provider: provider,
	}
}

// Add registers mod under key with the given group tag. A colliding key's
// previous occupant is detached under the write lock and restored after it is
// released, so its Restore never runs inside registry lock scope.
func (m *Manager) Add(key string, mod Modification, groupID uint16) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidArgument)
	}
	if mod == nil {
		return fmt.Errorf("%w: nil modification", ErrInvalidArgument)
	}

	mod.setKey(key)
	mod.SetGroupID(groupID)

	var old Modification
	m.mu.Lock()
	old = m.mods[key]
	m.mods[key] = mod
	m.mu.Unlock()

	if old != nil {
		logging.Warnf("[manager] %s %q already exists and will be replaced", old.Kind(), key)
		if err := old.Restore(); err != nil {
			logging.Errorf("[manager] failed to restore replaced %q: %v", key, err)
		}
	}
	return nil
}

// CreatePatch constructs a patch and registers it in one step.
func (m *Manager) CreatePatch(key string, target uintptr, patchBytes []byte, groupID uint16) error {
	p, err := NewPatch(m.mem, target, patchBytes)
	if err != nil {
		return err
	}
	return m.Add(key, p, groupID)
}

// CreateDetour constructs a detour and registers it in one step.
func (m *Manager) CreateDetour(key string, target uintptr, slot *uintptr, detourFn uintptr, groupID uint16) error {
	if m.provider == nil {
		return fmt.Errorf("%w: manager has no hook provider", ErrInvalidArgument)
	}
	d, err := NewDetour(m.mem, m.provider, target, slot, detourFn)
	if err != nil {
		return err
	}
	return m.Add(key, d, groupID)
}

// Exists reports whether key is registered.
func (m *Manager) Exists(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.mods[key]
	return ok
}

// Get returns the modification under key.
func (m *Manager) Get(key string) (Modification, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mod, ok := m.mods[key]
	return mod, ok
}

// Apply applies the modification under key.
func (m *Manager) Apply(key string) error {
	mod, ok := m.Get(key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return mod.Apply()
}

// Restore restores the modification under key.
func (m *Manager) Restore(key string) error {
	mod, ok := m.Get(key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return mod.Restore()
}

// Erase removes key from the registry without restoring it. Callers that
// need the memory back intact restore first, or use RestoreAndErase.
func (m *Manager) Erase(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mods[key]; !ok {
		return false
	}
	delete(m.mods, key)
	return true
}

// RestoreAndErase removes key under the write lock, then restores the
// detached modification outside it.
func (m *Manager) RestoreAndErase(key string) error {
	m.mu.Lock()
	mod, ok := m.mods[key]
	if ok {
		delete(m.mods, key)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return mod.Restore()
}

// All returns a snapshot of every registered modification.
func (m *Manager) All() []Modification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Modification, 0, len(m.mods))
	for _, mod := range m.mods {
		out = append(out, mod)
	}
	return out
}

// ByGroup returns a snapshot of the modifications tagged with groupID.
func (m *Manager) ByGroup(groupID uint16) []Modification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Modification
	for _, mod := range m.mods {
		if mod.GroupID() == groupID {
			out = append(out, mod)
		}
	}
	return out
}

// ByKind returns a snapshot of the modifications of the given variant.
func (m *Manager) ByKind(kind Kind) []Modification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Modification
	for _, mod := range m.mods {
		if mod.Kind() == kind {
			out = append(out, mod)
		}
	}
	return out
}

// applyEach applies every snapshot entry, continuing past failures and
// aggregating them.
func applyEach(mods []Modification) error {
	var errs []error
	for _, mod := range mods {
		if err := mod.Apply(); err != nil {
			errs = append(errs, fmt.Errorf("%s %q: %w", mod.Kind(), mod.Key(), err))
		}
	}
	return errors.Join(errs...)
}

func restoreEach(mods []Modification) error {
	var errs []error
	for _, mod := range mods {
		if err := mod.Restore(); err != nil {
			errs = append(errs, fmt.Errorf("%s %q: %w", mod.Kind(), mod.Key(), err))
		}
	}
	return errors.Join(errs...)
}

// ApplyAll applies everything, detours before patches. A single failure does
// not stop the batch; every failure is reported in the aggregated error.
func (m *Manager) ApplyAll() error {
	err := errors.Join(
		applyEach(m.ByKind(KindDetour)),
		applyEach(m.ByKind(KindPatch)),
	)
	logging.Debugf("[manager] applied all modifications")
	return err
}

// RestoreAll restores everything, patches before detours.
func (m *Manager) RestoreAll() error {
	err := errors.Join(
		restoreEach(m.ByKind(KindPatch)),
		restoreEach(m.ByKind(KindDetour)),
	)
	logging.Debugf("[manager] restored all modifications")
	return err
}

// ApplyGroup applies every modification tagged with groupID.
func (m *Manager) ApplyGroup(groupID uint16) error { return applyEach(m.ByGroup(groupID)) }

// RestoreGroup restores every modification tagged with groupID.
func (m *Manager) RestoreGroup(groupID uint16) error { return restoreEach(m.ByGroup(groupID)) }

// ApplyKind applies every modification of the given variant.
func (m *Manager) ApplyKind(kind Kind) error { return applyEach(m.ByKind(kind)) }

// RestoreKind restores every modification of the given variant.
func (m *Manager) RestoreKind(kind Kind) error { return restoreEach(m.ByKind(kind)) }

// EraseAll empties the registry without restoring anything.
func (m *Manager) EraseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mods = make(map[string]Modification)
}

// RestoreAndEraseAll empties the registry, restoring every detached entry
// after the write lock is released.
func (m *Manager) RestoreAndEraseAll() error {
	m.mu.Lock()
	detached := make([]Modification, 0, len(m.mods))
	for _, mod := range m.mods {
		detached = append(detached, mod)
	}
	m.mods = make(map[string]Modification)
	m.mu.Unlock()

	return restoreEach(detached)
}

// EraseGroup removes every modification tagged with groupID without
// restoring.
func (m *Manager) EraseGroup(groupID uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, mod := range m.mods {
		if mod.GroupID() == groupID {
			delete(m.mods, key)
		}
	}
}

// RestoreAndEraseGroup removes and restores every modification tagged with
// groupID.
func (m *Manager) RestoreAndEraseGroup(groupID uint16) error {
	m.mu.Lock()
	var detached []Modification
	for key, mod := range m.mods {
		if mod.GroupID() == groupID {
			detached = append(detached, mod)
			delete(m.mods, key)
		}
	}
	m.mu.Unlock()

	return restoreEach(detached)
}

// EraseKind removes every modification of the given variant without
// restoring.
func (m *Manager) EraseKind(kind Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, mod := range m.mods {
		if mod.Kind() == kind {
			delete(m.mods, key)
		}
	}
}

// RestoreAndEraseKind removes and restores every modification of the given
// variant.
func (m *Manager) RestoreAndEraseKind(kind Kind) error {
	m.mu.Lock()
	var detached []Modification
	for key, mod := range m.mods {
		if mod.Kind() == kind {
			detached = append(detached, mod)
			delete(m.mods, key)
		}
	}
	m.mu.Unlock()

	return restoreEach(detached)
}

// IsLocationModified reports whether [address, address+length) overlaps any
// currently-applied modification, and returns the keys of every overlapping
// entry. Intervals are half-open; a modification ending exactly at address
// does not overlap.
func (m *Manager) IsLocationModified(address, length uintptr) (bool, []string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for key, mod := range m.mods {
		if !mod.IsModified() {
			continue
		}
		if rangesOverlap(address, length, mod.Target(), mod.Size()) {
			keys = append(keys, key)
		}
	}
	return len(keys) > 0, keys
}
