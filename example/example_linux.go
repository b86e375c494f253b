//go:build linux

package main

import (
	"byteweaver/native"
	"byteweaver/native_linux"
)

func newMemory() native.Memory {
	return native_linux.NewMemory()
}
