package modify

import (
	"bytes"
	"errors"
	"testing"

	"byteweaver/hook"
	"byteweaver/native"
)

// codeBuffer returns a buffer of NOPs long enough for the size probe, so the
// decoder sees single-byte instructions and sizes the detour exactly at the
// provider footprint.
func codeBuffer() []byte {
	return bytes.Repeat([]byte{0x90}, hook.MinFootprint64+maxInstructionLen)
}

func TestDetourApplyRestore(t *testing.T) {
	code := codeBuffer()
	target := bufAddr(code)
	provider := &fakeProvider{trampoline: 0xC0DE, original: target}
	slot := target

	d, err := NewDetour(newFakeMemory(), provider, target, &slot, 0xBEEF)
	if err != nil {
		t.Fatalf("NewDetour: %v", err)
	}
	if d.Size() != uintptr(provider.MinFootprint()) {
		t.Errorf("Size = %d, want %d", d.Size(), provider.MinFootprint())
	}
	if d.Kind() != KindDetour {
		t.Errorf("Kind = %v", d.Kind())
	}

	if err := d.Apply(); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !d.IsModified() {
		t.Error("applied detour reports unmodified")
	}
	if slot != 0xC0DE {
		t.Errorf("slot = %#x, want trampoline 0xC0DE", slot)
	}
	if !provider.last.committed {
		t.Error("transaction was not committed")
	}
	want := bytes.Repeat([]byte{0x90}, provider.MinFootprint())
	if got := d.OriginalBytes(); !bytes.Equal(got, want) {
		t.Errorf("OriginalBytes = %x, want %x", got, want)
	}

	if err := d.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if d.IsModified() {
		t.Error("restored detour reports modified")
	}
	if slot != target {
		t.Errorf("slot = %#x, want original %#x", slot, target)
	}
}

func TestDetourIdempotence(t *testing.T) {
	code := codeBuffer()
	target := bufAddr(code)
	provider := &fakeProvider{trampoline: 0xC0DE}
	slot := target

	d, err := NewDetour(newFakeMemory(), provider, target, &slot, 0xBEEF)
	if err != nil {
		t.Fatal(err)
	}

	if err := d.Restore(); err != nil {
		t.Fatalf("Restore on fresh detour: %v", err)
	}
	if provider.last != nil {
		t.Error("no-op restore opened a transaction")
	}

	if err := d.Apply(); err != nil {
		t.Fatal(err)
	}
	first := provider.last
	if err := d.Apply(); err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if provider.last != first {
		t.Error("no-op apply opened a transaction")
	}
}

func TestDetourCommitFailure(t *testing.T) {
	code := codeBuffer()
	target := bufAddr(code)
	provider := &fakeProvider{trampoline: 0xC0DE}
	slot := target

	d, err := NewDetour(newFakeMemory(), provider, target, &slot, 0xBEEF)
	if err != nil {
		t.Fatal(err)
	}

	provider.commitErr = &hook.CommitError{Reason: "relocation failed"}
	err = d.Apply()
	if !errors.Is(err, hook.ErrTransactionFailed) {
		t.Fatalf("got %v, want ErrTransactionFailed", err)
	}
	if !provider.last.aborted {
		t.Error("failed commit was not aborted")
	}
	if d.IsModified() {
		t.Error("failed apply reports modified")
	}
	if slot != target {
		t.Errorf("failed apply changed the slot to %#x", slot)
	}
}

func TestDetourCommitFailurePlainError(t *testing.T) {
	// A provider that rejects a commit with an arbitrary error still
	// surfaces through the transaction-failure sentinel.
	code := codeBuffer()
	target := bufAddr(code)
	provider := &fakeProvider{trampoline: 0xC0DE, original: target}
	slot := target

	d, err := NewDetour(newFakeMemory(), provider, target, &slot, 0xBEEF)
	if err != nil {
		t.Fatal(err)
	}

	provider.commitErr = errors.New("page became unwritable")
	if err := d.Apply(); !errors.Is(err, hook.ErrTransactionFailed) {
		t.Fatalf("Apply: got %v, want ErrTransactionFailed", err)
	}
	if d.IsModified() {
		t.Error("failed apply reports modified")
	}

	provider.commitErr = nil
	if err := d.Apply(); err != nil {
		t.Fatal(err)
	}

	provider.commitErr = errors.New("page became unwritable")
	if err := d.Restore(); !errors.Is(err, hook.ErrTransactionFailed) {
		t.Fatalf("Restore: got %v, want ErrTransactionFailed", err)
	}
	if !d.IsModified() {
		t.Error("failed restore cleared the modified flag")
	}
}

func TestDetourAttachFailure(t *testing.T) {
	code := codeBuffer()
	target := bufAddr(code)
	provider := &fakeProvider{attachErr: errors.New("bad pointer")}
	slot := target

	d, err := NewDetour(newFakeMemory(), provider, target, &slot, 0xBEEF)
	if err != nil {
		t.Fatal(err)
	}

	if err := d.Apply(); !errors.Is(err, hook.ErrTransactionFailed) {
		t.Fatalf("got %v, want ErrTransactionFailed", err)
	}
	if !provider.last.aborted {
		t.Error("failed attach was not aborted")
	}
	if d.IsModified() {
		t.Error("failed apply reports modified")
	}
}

func TestDetourNotExecutable(t *testing.T) {
	code := codeBuffer()
	target := bufAddr(code)
	mem := newFakeMemory()
	slot := target

	d, err := NewDetour(mem, &fakeProvider{}, target, &slot, 0xBEEF)
	if err != nil {
		t.Fatal(err)
	}

	mem.prot = native.ProtRead | native.ProtWrite
	if err := d.Apply(); !errors.Is(err, ErrNotExecutable) {
		t.Fatalf("got %v, want ErrNotExecutable", err)
	}
}

func TestNewDetourValidation(t *testing.T) {
	code := codeBuffer()
	target := bufAddr(code)
	mem := newFakeMemory()
	provider := &fakeProvider{}
	slot := target

	if _, err := NewDetour(nil, provider, target, &slot, 0xBEEF); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("nil memory: got %v", err)
	}
	if _, err := NewDetour(mem, nil, target, &slot, 0xBEEF); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("nil provider: got %v", err)
	}
	if _, err := NewDetour(mem, provider, 0, &slot, 0xBEEF); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("zero target: got %v", err)
	}
	if _, err := NewDetour(mem, provider, target, nil, 0xBEEF); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("nil slot: got %v", err)
	}
	if _, err := NewDetour(mem, provider, target, &slot, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("zero detour function: got %v", err)
	}

	mem.queryErr = errors.New("no region")
	if _, err := NewDetour(mem, provider, target, &slot, 0xBEEF); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("unreadable target: got %v", err)
	}
}
