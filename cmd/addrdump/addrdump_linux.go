//go:build linux

package main

import (
	"byteweaver/native_linux"
	"byteweaver/scan"
)

func newScanner() *scan.Scanner {
	return scan.NewScanner(native_linux.NewOracle(), native_linux.NewMemory())
}
