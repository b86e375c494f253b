// addrdump resolves an address-definition file against the live process's
// loaded modules and prints the result. Pointing it at a definition file for
// a freshly updated target module shows which signatures survived the update.
//
//	addrdump -defs addresses.yaml [-verify]
package main

import (
	"flag"
	"fmt"
	"os"

	"byteweaver/address"
	"byteweaver/config"
)

func main() {
	defsFlag := flag.String("defs", "", "Address definition file (yaml/json/toml)")
	verifyFlag := flag.Bool("verify", false, "Re-verify entries after resolving")
	flag.Parse()

	if *defsFlag == "" {
		fmt.Println("Error: -defs is required")
		flag.Usage()
		os.Exit(1)
	}

	file, err := config.Load(*defsFlag)
	if err != nil {
		fmt.Printf("Error loading definitions: %v\n", err)
		os.Exit(1)
	}

	scanner := newScanner()
	db := address.NewDB(scanner)
	if err := file.Populate(db); err != nil {
		fmt.Printf("Warning: some definitions were skipped: %v\n", err)
	}

	fmt.Printf("Resolving %d entries\n", db.Len())
	db.UpdateAll()

	failures := 0
	db.Read(func(key address.Key, entry *address.Entry) {
		target := entry.Target()
		status := fmt.Sprintf("%#x", target)
		if target == 0 {
			status = "UNRESOLVED"
			failures++
		}
		fmt.Printf("  %-24s %-20s %s\n", key.Symbol, key.Module, status)
	})

	if *verifyFlag && !db.VerifyAll() {
		fmt.Println("Verification reported stale entries")
		os.Exit(1)
	}
	if failures > 0 {
		fmt.Printf("%d entries unresolved\n", failures)
		os.Exit(1)
	}
}
