// Demonstrates the modification registry against the process's own memory:
// register a patch over a data buffer, apply it, query overlap, restore.
package main

import (
	"fmt"
	"unsafe"

	"byteweaver/modify"
)

var banner = [8]byte{'o', 'r', 'i', 'g', 'i', 'n', 'a', 'l'}

func main() {
	target := uintptr(unsafe.Pointer(&banner[0]))

	manager := modify.NewManager(newMemory(), nil)
	if err := manager.CreatePatch("banner", target, []byte{'p', 'a', 't', 'c', 'h', 'e', 'd', '!'}, 1); err != nil {
		fmt.Println("create:", err)
		return
	}

	fmt.Printf("before: %s\n", banner[:])

	if err := manager.ApplyAll(); err != nil {
		fmt.Println("apply:", err)
		return
	}
	fmt.Printf("after:  %s\n", banner[:])

	if hit, keys := manager.IsLocationModified(target, 4); hit {
		fmt.Println("range owned by:", keys)
	}

	if err := manager.RestoreAll(); err != nil {
		fmt.Println("restore:", err)
		return
	}
	fmt.Printf("restored: %s\n", banner[:])
}
