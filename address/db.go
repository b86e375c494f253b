package address

import (
	"sync"

	"byteweaver/logging"
)

// Key is the composite database key: one entry per (symbol, module) pair.
type Key struct {
	Symbol string
	Module string
}

// DB is a thread-safe store of address entries keyed by symbol and module.
// Entries are value-owned by the map; callers must not retain entry pointers
// beyond the Read or Mutate callback that produced them.
type DB struct {
	mu       sync.RWMutex
	entries  map[Key]*Entry
	resolver Resolver
}

// NewDB builds an empty database resolving through r.
func NewDB(r Resolver) *DB {
	return &DB{
		entries:  make(map[Key]*Entry),
		resolver: r,
	}
}

// Add inserts an entry, replacing any existing entry under the same key.
// Identity fields are immutable, so replacement is a fresh insert rather
// than an in-place mutation.
func (db *DB) Add(entry *Entry) {
	if entry == nil {
		return
	}
	key := Key{Symbol: entry.Symbol(), Module: entry.Module()}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.entries[key] = entry
}

// AddExport registers a symbol resolved through the module's export table.
func (db *DB) AddExport(symbolName, moduleName string) {
	db.Add(NewEntry(symbolName, moduleName))
}

// AddKnownAddress registers a symbol with an already-known address.
func (db *DB) AddKnownAddress(symbolName, moduleName string, address uintptr) {
	db.Add(WithKnownAddress(symbolName, moduleName, address))
}

// AddKnownOffset registers a symbol at a fixed offset from its module base.
func (db *DB) AddKnownOffset(symbolName, moduleName string, offset uintptr) {
	db.Add(WithKnownOffset(symbolName, moduleName, offset))
}

// AddScanPattern registers a symbol located by signature scan. A malformed
// signature is returned as an error and nothing is added.
func (db *DB) AddScanPattern(symbolName, moduleName, signature string) error {
	entry, err := WithScanPattern(symbolName, moduleName, signature)
	if err != nil {
		return err
	}
	db.Add(entry)
	return nil
}

// Find returns the entry under (symbolName, moduleName). The pointer stays
// owned by the database; use Read or Mutate when iterating.
func (db *DB) Find(symbolName, moduleName string) (*Entry, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	entry, ok := db.entries[Key{Symbol: symbolName, Module: moduleName}]
	return entry, ok
}

// Resolve finds an entry and returns its address, resolving read-only so a
// concurrent reader never mutates the cache. Callers wanting the cache warm
// should run UpdateAll first.
func (db *DB) Resolve(symbolName, moduleName string) (uintptr, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	entry, ok := db.entries[Key{Symbol: symbolName, Module: moduleName}]
	if !ok {
		return 0, ErrUnresolved
	}
	return entry.AddressReadOnly(db.resolver)
}

// Remove deletes the entry under (symbolName, moduleName).
func (db *DB) Remove(symbolName, moduleName string) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	key := Key{Symbol: symbolName, Module: moduleName}
	if _, ok := db.entries[key]; !ok {
		return false
	}
	delete(db.entries, key)
	return true
}

// Clear empties the database.
func (db *DB) Clear() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.entries = make(map[Key]*Entry)
}

// Len returns the number of entries.
func (db *DB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.entries)
}

// Read iterates the database under the shared lock. The lock is held for the
// whole iteration; fn must not retain entry pointers past its return and must
// not mutate entries.
func (db *DB) Read(fn func(key Key, entry *Entry)) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for key, entry := range db.entries {
		fn(key, entry)
	}
}

// Mutate iterates the database under the exclusive lock, allowing fn to
// update entries in place.
func (db *DB) Mutate(fn func(key Key, entry *Entry)) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for key, entry := range db.entries {
		fn(key, entry)
	}
}

// UpdateAll re-resolves every entry's module base from the currently loaded
// module, then updates the entry. Entries whose module is not loaded are
// logged and skipped.
func (db *DB) UpdateAll() {
	db.Mutate(func(key Key, entry *Entry) {
		base, err := db.resolver.ModuleBase(key.Module)
		if err != nil {
			logging.Errorf("[address] module %s not loaded, skipping %s: %v", key.Module, key.Symbol, err)
			return
		}
		entry.SetModuleBase(base)
		if _, err := entry.Update(db.resolver); err != nil {
			logging.Errorf("[address] update failed for %s in %s: %v", key.Symbol, key.Module, err)
		}
	})
}

// VerifyAll verifies every entry against a fresh resolution, attempting an
// Update to self-heal on mismatch. It returns true only when every entry
// verified clean; on any failure the whole database is dumped for diagnosis.
func (db *DB) VerifyAll() bool {
	allGood := true

	logging.Debugf("[address] verifying all entries...")
	db.Mutate(func(key Key, entry *Entry) {
		if entry.Verify(db.resolver) {
			logging.Debugf("[address] %-17s : OK (%#x)", key.Symbol, entry.Target())
			return
		}

		allGood = false
		oldAddress := entry.Target()
		oldBase := entry.ModuleBase()
		oldOffset := entry.KnownOffset()

		updated, err := entry.Update(db.resolver)
		if err != nil {
			logging.Errorf("[address] %-17s : VERIFY FAILED and UPDATE FAILED (module=%s)", key.Symbol, key.Module)
			return
		}
		logging.Warnf("[address] %-17s : UPDATED -> %#x (was %#x)", key.Symbol, updated, oldAddress)
		logging.Debugf("[address] %-17s : base %#x -> %#x, offset %#x -> %#x",
			key.Symbol, oldBase, entry.ModuleBase(), oldOffset, entry.KnownOffset())
	})

	if allGood {
		logging.Debugf("[address] all entries verified successfully")
	} else {
		logging.Warnf("[address] one or more entries failed verification")
		db.DumpAll()
	}
	return allGood
}

// DumpAll logs the resolution state of every entry.
func (db *DB) DumpAll() {
	logging.Debugf("[address] dumping database...")
	db.Read(func(_ Key, entry *Entry) {
		entry.Dump()
	})
	logging.Debugf("[address] database dump complete")
}
