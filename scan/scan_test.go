package scan

import (
	"bytes"
	"errors"
	"testing"
	"unsafe"

	"byteweaver/native"
)

func TestParsePattern(t *testing.T) {
	tests := []struct {
		signature string
		bytes     []byte
		mask      []byte
		wantErr   bool
	}{
		{signature: "48,8B,?,89", bytes: []byte{0x48, 0x8B, 0x00, 0x89}, mask: []byte{0xFF, 0xFF, 0x00, 0xFF}},
		{signature: "??", bytes: []byte{0x00}, mask: []byte{0x00}},
		{signature: "de, ad, be, ef", bytes: []byte{0xDE, 0xAD, 0xBE, 0xEF}, mask: []byte{0xFF, 0xFF, 0xFF, 0xFF}},
		{signature: "48,ZZ", wantErr: true},
		{signature: "", wantErr: true},
		{signature: "123", wantErr: true},
	}

	for _, tt := range tests {
		pattern, err := ParsePattern(tt.signature)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParsePattern(%q): expected error", tt.signature)
			}
			if !errors.Is(err, ErrBadPattern) {
				t.Errorf("ParsePattern(%q): error %v does not wrap ErrBadPattern", tt.signature, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePattern(%q): %v", tt.signature, err)
			continue
		}
		if !bytes.Equal(pattern.Bytes, tt.bytes) || !bytes.Equal(pattern.Mask, tt.mask) {
			t.Errorf("ParsePattern(%q) = %x/%x, want %x/%x",
				tt.signature, pattern.Bytes, pattern.Mask, tt.bytes, tt.mask)
		}
	}
}

func TestPatternString(t *testing.T) {
	pattern, err := ParsePattern("48,8b,?,89")
	if err != nil {
		t.Fatal(err)
	}
	if got := pattern.String(); got != "48,8B,?,89" {
		t.Errorf("String() = %q, want %q", got, "48,8B,?,89")
	}
}

func TestFindInBuffer(t *testing.T) {
	data := []byte{0x11, 0x22, 0x33, 0x11, 0x22, 0x44}
	pattern, err := ParsePattern("11,22,?")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		skip   int
		offset int
		found  bool
	}{
		{skip: 0, offset: 0, found: true},
		{skip: 1, offset: 3, found: true},
		{skip: 2, found: false},
	}
	for _, tt := range tests {
		offset, found := FindInBuffer(data, pattern, tt.skip)
		if found != tt.found || (found && offset != tt.offset) {
			t.Errorf("FindInBuffer(skip=%d) = (%d, %v), want (%d, %v)",
				tt.skip, offset, found, tt.offset, tt.found)
		}
	}
}

func TestFindInBufferEdgeCases(t *testing.T) {
	pattern, _ := ParsePattern("11,22")

	if _, found := FindInBuffer([]byte{0x11}, pattern, 0); found {
		t.Error("found a match in a buffer shorter than the pattern")
	}
	if _, found := FindInBuffer(nil, pattern, 0); found {
		t.Error("found a match in a nil buffer")
	}

	// Match at the very end of the buffer.
	offset, found := FindInBuffer([]byte{0x00, 0x11, 0x22}, pattern, 0)
	if !found || offset != 1 {
		t.Errorf("match at buffer end: got (%d, %v)", offset, found)
	}
}

func TestFindSignatureChunked(t *testing.T) {
	// Plants at offsets below, at, and above the chunk boundary exercise
	// both the overlap handling and skip counting across chunks.
	buf := make([]byte, 3*scanChunkSize)
	plant := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	offsets := []int{100, scanChunkSize - 2, 2*scanChunkSize + 500}
	for _, off := range offsets {
		copy(buf[off:], plant)
	}

	pattern, err := ParsePattern("DE,AD,BE,EF")
	if err != nil {
		t.Fatal(err)
	}

	scanner := NewScanner(nil, nil)
	base := uintptr(unsafe.Pointer(&buf[0]))
	for skip, off := range offsets {
		addr, err := scanner.FindSignature(base, uintptr(len(buf)), pattern, skip)
		if err != nil {
			t.Fatalf("FindSignature(skip=%d): %v", skip, err)
		}
		if want := base + uintptr(off); addr != want {
			t.Errorf("FindSignature(skip=%d) = %#x, want %#x", skip, addr, want)
		}
	}

	if _, err := scanner.FindSignature(base, uintptr(len(buf)), pattern, len(offsets)); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindSignature past last match: got %v, want ErrNotFound", err)
	}
}

func TestFindSignatureInvalidInput(t *testing.T) {
	scanner := NewScanner(nil, nil)

	if _, err := scanner.FindSignature(0, 100, Pattern{Bytes: []byte{1}, Mask: []byte{0xFF}}, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("zero base: got %v, want ErrNotFound", err)
	}
	if _, err := scanner.FindSignature(0x1000, 100, Pattern{}, 0); !errors.Is(err, ErrBadPattern) {
		t.Errorf("empty pattern: got %v, want ErrBadPattern", err)
	}
}

type fakeOracle struct {
	mod       native.Module
	modErr    error
	exports   map[string]uintptr
	exportErr error
}

func (f *fakeOracle) Module(name string) (native.Module, error) {
	if f.modErr != nil {
		return native.Module{}, f.modErr
	}
	return f.mod, nil
}

func (f *fakeOracle) ModuleAt(addr uintptr) (native.Module, error) {
	return f.Module("")
}

func (f *fakeOracle) Export(module, symbol string) (uintptr, error) {
	if f.exportErr != nil {
		return 0, f.exportErr
	}
	addr, ok := f.exports[symbol]
	if !ok {
		return 0, native.ErrExportNotFound
	}
	return addr, nil
}

func TestModuleSearch(t *testing.T) {
	buf := make([]byte, 4096)
	copy(buf[512:], []byte{0xCA, 0xFE, 0xBA, 0xBE})
	base := uintptr(unsafe.Pointer(&buf[0]))

	oracle := &fakeOracle{mod: native.Module{Name: "game.dll", Base: base, End: base + uintptr(len(buf))}}
	scanner := NewScanner(oracle, nil)

	result, err := scanner.ModuleSearchSignature("game.dll", "magic", "CA,FE,?,BE", 0)
	if err != nil {
		t.Fatalf("ModuleSearch: %v", err)
	}
	if result.ModuleBase != base {
		t.Errorf("ModuleBase = %#x, want %#x", result.ModuleBase, base)
	}
	if result.Offset != 512 {
		t.Errorf("Offset = %#x, want %#x", result.Offset, 512)
	}
	if result.Address != base+512 {
		t.Errorf("Address = %#x, want %#x", result.Address, base+512)
	}
}

func TestModuleSearchNotLoaded(t *testing.T) {
	oracle := &fakeOracle{modErr: native.ErrModuleNotLoaded}
	scanner := NewScanner(oracle, nil)

	if _, err := scanner.ModuleSearchSignature("missing.dll", "sym", "11,22", 0); !errors.Is(err, native.ErrModuleNotLoaded) {
		t.Errorf("got %v, want ErrModuleNotLoaded", err)
	}
}

func TestLookupExport(t *testing.T) {
	oracle := &fakeOracle{
		mod:     native.Module{Name: "kernel32.dll", Base: 0x10000, End: 0x20000},
		exports: map[string]uintptr{"CreateFileW": 0x11234},
	}
	scanner := NewScanner(oracle, nil)

	result, err := scanner.LookupExport("kernel32.dll", "CreateFileW")
	if err != nil {
		t.Fatalf("LookupExport: %v", err)
	}
	if result.Address != 0x11234 || result.Offset != 0x1234 || result.ModuleBase != 0x10000 {
		t.Errorf("unexpected result %+v", result)
	}

	if _, err := scanner.LookupExport("kernel32.dll", "NoSuchExport"); !errors.Is(err, native.ErrExportNotFound) {
		t.Errorf("got %v, want ErrExportNotFound", err)
	}
}
