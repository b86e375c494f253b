//go:build linux

package native_linux

import (
	"testing"
	"unsafe"
)

func TestMemoryQuerySelf(t *testing.T) {
	mem := NewMemory()
	buf := make([]byte, 64)
	addr := uintptr(unsafe.Pointer(&buf[0]))

	region, err := mem.Query(addr)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !region.Committed || !region.Prot.CanRead() || !region.Contains(addr) {
		t.Errorf("heap region %+v does not cover %#x as committed+readable", region, addr)
	}

	if _, err := mem.Query(0); err == nil {
		t.Error("expected error for the zero page")
	}
}

func TestOracleMainModule(t *testing.T) {
	oracle := NewOracle()

	mod, err := oracle.Module("")
	if err != nil {
		t.Fatalf("Module(\"\"): %v", err)
	}
	if mod.Base == 0 || mod.End <= mod.Base || mod.Name == "" {
		t.Errorf("main module %+v", mod)
	}

	if _, err := oracle.Module("definitely-not-loaded.so"); err == nil {
		t.Error("expected error for an unloaded module")
	}
}

func TestOracleModuleAt(t *testing.T) {
	oracle := NewOracle()

	main, err := oracle.Module("")
	if err != nil {
		t.Fatal(err)
	}
	mod, err := oracle.ModuleAt(main.Base)
	if err != nil {
		t.Fatalf("ModuleAt: %v", err)
	}
	if mod.Path != main.Path {
		t.Errorf("ModuleAt(%#x) = %s, want %s", main.Base, mod.Path, main.Path)
	}
}
