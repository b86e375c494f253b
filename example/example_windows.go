//go:build windows

package main

import (
	"byteweaver/native"
	"byteweaver/native_windows"
)

func newMemory() native.Memory {
	return native_windows.NewMemory()
}
