package modify

import (
	"unsafe"

	"byteweaver/hook"
	"byteweaver/native"
)

// fakeMemory reports every queried address as part of one large committed
// region, so tests can patch real Go buffers without touching page
// protections.
type fakeMemory struct {
	prot       native.Protection
	protectErr error
	queryErr   error

	protectCalls int
	flushCalls   int
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{prot: native.ProtRWX}
}

func (f *fakeMemory) Protect(addr, size uintptr, prot native.Protection) (native.Protection, error) {
	f.protectCalls++
	if f.protectErr != nil {
		return 0, f.protectErr
	}
	return f.prot, nil
}

func (f *fakeMemory) Query(addr uintptr) (native.Region, error) {
	if f.queryErr != nil {
		return native.Region{}, f.queryErr
	}
	return native.Region{Base: addr, Size: 1 << 20, Prot: f.prot, Committed: true}, nil
}

func (f *fakeMemory) FlushICache(addr, size uintptr) error {
	f.flushCalls++
	return nil
}

// fakeTransaction records attach and detach calls and simulates the provider
// swapping the slot to the trampoline on commit.
type fakeTransaction struct {
	provider *fakeProvider

	attachedSlot *uintptr
	detachedSlot *uintptr
	committed    bool
	aborted      bool
}

func (t *fakeTransaction) Attach(slot *uintptr, detourFn uintptr) error {
	if t.provider.attachErr != nil {
		return t.provider.attachErr
	}
	t.attachedSlot = slot
	return nil
}

func (t *fakeTransaction) Detach(slot *uintptr, detourFn uintptr) error {
	if t.provider.detachErr != nil {
		return t.provider.detachErr
	}
	t.detachedSlot = slot
	return nil
}

func (t *fakeTransaction) Commit() error {
	if t.provider.commitErr != nil {
		return t.provider.commitErr
	}
	t.committed = true
	if t.attachedSlot != nil {
		*t.attachedSlot = t.provider.trampoline
	}
	if t.detachedSlot != nil {
		*t.detachedSlot = t.provider.original
	}
	return nil
}

func (t *fakeTransaction) Abort() {
	t.aborted = true
}

type fakeProvider struct {
	beginErr  error
	attachErr error
	commitErr error
	detachErr error

	trampoline uintptr
	original   uintptr

	last *fakeTransaction
}

func (p *fakeProvider) Begin() (hook.Transaction, error) {
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	p.last = &fakeTransaction{provider: p}
	return p.last, nil
}

func (p *fakeProvider) MinFootprint() int { return hook.MinFootprint32 }

func bufAddr(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(&buf[0]))
}
