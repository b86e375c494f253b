//go:build windows

package main

import (
	"byteweaver/native_windows"
	"byteweaver/scan"
)

func newScanner() *scan.Scanner {
	return scan.NewScanner(native_windows.NewOracle(), native_windows.NewMemory())
}
