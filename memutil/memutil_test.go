package memutil

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"unsafe"

	"byteweaver/native"
)

// openMemory reports every address as one large committed region.
type openMemory struct {
	prot native.Protection
}

func (m *openMemory) Protect(addr, size uintptr, prot native.Protection) (native.Protection, error) {
	return m.prot, nil
}

func (m *openMemory) Query(addr uintptr) (native.Region, error) {
	return native.Region{Base: addr, Size: 1 << 20, Prot: m.prot, Committed: true}, nil
}

func (m *openMemory) FlushICache(addr, size uintptr) error { return nil }

// closedMemory rejects every query.
type closedMemory struct{}

func (closedMemory) Protect(addr, size uintptr, prot native.Protection) (native.Protection, error) {
	return native.ProtNone, nil
}

func (closedMemory) Query(addr uintptr) (native.Region, error) {
	return native.Region{}, native.ErrAddressNotMapped
}

func (closedMemory) FlushICache(addr, size uintptr) error { return nil }

func addrOf(buf []byte) uintptr { return uintptr(unsafe.Pointer(&buf[0])) }

func TestReadBytes(t *testing.T) {
	buf := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	mem := &openMemory{prot: native.ProtRead}

	got, err := ReadBytes(mem, addrOf(buf), 4)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if !bytes.Equal(got, buf) {
		t.Errorf("ReadBytes = %x, want %x", got, buf)
	}

	// The returned slice is a copy, not a view.
	got[0] = 0x00
	if buf[0] != 0xDE {
		t.Error("ReadBytes aliased the source buffer")
	}

	if _, err := ReadBytes(mem, 0, 4); !errors.Is(err, native.ErrAddressNotMapped) {
		t.Errorf("zero address: got %v", err)
	}
	if _, err := ReadBytes(closedMemory{}, addrOf(buf), 4); !errors.Is(err, native.ErrAddressNotMapped) {
		t.Errorf("unmapped range: got %v", err)
	}
}

func TestReadPointer(t *testing.T) {
	value := uintptr(0xDEADBEEF)
	mem := &openMemory{prot: native.ProtRead}

	got, err := ReadPointer(mem, uintptr(unsafe.Pointer(&value)))
	if err != nil {
		t.Fatalf("ReadPointer: %v", err)
	}
	if got != value {
		t.Errorf("ReadPointer = %#x, want %#x", got, value)
	}
}

func TestReadCString(t *testing.T) {
	buf := []byte("hello\x00world")
	mem := &openMemory{prot: native.ProtRead}

	got, err := ReadCString(mem, addrOf(buf), uintptr(len(buf)))
	if err != nil {
		t.Fatalf("ReadCString: %v", err)
	}
	if got != "hello" {
		t.Errorf("ReadCString = %q, want %q", got, "hello")
	}

	// No terminator within maxLength truncates at the limit.
	got, err = ReadCString(mem, addrOf(buf), 3)
	if err != nil {
		t.Fatalf("ReadCString truncated: %v", err)
	}
	if got != "hel" {
		t.Errorf("ReadCString = %q, want %q", got, "hel")
	}

	if _, err := ReadCString(closedMemory{}, addrOf(buf), 8); !errors.Is(err, native.ErrAddressNotMapped) {
		t.Errorf("unmapped string: got %v", err)
	}
}

func TestBytesToHex(t *testing.T) {
	if got := BytesToHex([]byte{0xDE, 0xAD, 0xBE, 0xEF}); got != "deadbeef" {
		t.Errorf("BytesToHex = %q", got)
	}
	if got := BytesToHex(nil); got != "" {
		t.Errorf("BytesToHex(nil) = %q", got)
	}
}

func TestDump(t *testing.T) {
	data := append([]byte("GET /index"), 0x00, 0xFF)
	out := Dump(data, 0x1000)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "0000000000001000") {
		t.Errorf("missing base-relative offset column: %q", lines[0])
	}
	if !strings.Contains(lines[0], "47 45 54") {
		t.Errorf("missing hex bytes: %q", lines[0])
	}
	if !strings.Contains(lines[0], "|GET /index..|") {
		t.Errorf("ASCII column wrong: %q", lines[0])
	}
}

func TestDumpWith(t *testing.T) {
	data := make([]byte, 20)
	out := DumpWith(data, DumpOptions{BytesPerLine: 16, ShowASCII: false})

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), out)
	}
	if strings.Contains(out, "|") {
		t.Errorf("ASCII column present with ShowASCII=false:\n%s", out)
	}

	if DumpWith(nil, DefaultDumpOptions()) != "" {
		t.Error("dump of empty data should be empty")
	}
}

func TestFileBufferRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region.bin")
	data := []byte{0x00, 0x11, 0x22, 0x33, 0xFF}

	if err := WriteBufferToFile(path, data); err != nil {
		t.Fatalf("WriteBufferToFile: %v", err)
	}
	got, err := ReadFileBuffer(path)
	if err != nil {
		t.Fatalf("ReadFileBuffer: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("round trip = %x, want %x", got, data)
	}

	if err := WriteBufferToFile(path, nil); err == nil {
		t.Error("expected error for empty buffer")
	}
	if _, err := ReadFileBuffer(filepath.Join(t.TempDir(), "missing.bin")); err == nil {
		t.Error("expected error for missing file")
	}
}
