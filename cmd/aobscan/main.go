// aobscan searches a binary file for a byte signature.
//
//	aobscan -file game.dll -sig "48,8B,?,89" [-skip 1] [-all]
package main

import (
	"flag"
	"fmt"
	"os"

	"byteweaver/memutil"
	"byteweaver/scan"
)

func main() {
	fileFlag := flag.String("file", "", "File to scan")
	sigFlag := flag.String("sig", "", "Signature to scan for (e.g., '48,8B,?,89')")
	skipFlag := flag.Int("skip", 0, "Number of leading matches to skip")
	allFlag := flag.Bool("all", false, "Report every match instead of the first")
	contextFlag := flag.Int("context", 32, "Bytes of context to dump around each match")
	flag.Parse()

	if *fileFlag == "" || *sigFlag == "" {
		fmt.Println("Error: -file and -sig are required")
		flag.Usage()
		os.Exit(1)
	}

	pattern, err := scan.ParsePattern(*sigFlag)
	if err != nil {
		fmt.Printf("Error parsing signature: %v\n", err)
		os.Exit(1)
	}

	data, err := memutil.ReadFileBuffer(*fileFlag)
	if err != nil {
		fmt.Printf("Error reading %s: %v\n", *fileFlag, err)
		os.Exit(1)
	}

	fmt.Printf("Scanning %s (%d bytes) for %s\n", *fileFlag, len(data), pattern)

	matches := 0
	skip := *skipFlag
	for {
		offset, ok := scan.FindInBuffer(data, pattern, skip)
		if !ok {
			break
		}
		matches++

		fmt.Printf("\nMatch at offset %#x:\n", offset)
		start := offset - *contextFlag/2
		if start < 0 {
			start = 0
		}
		end := start + *contextFlag
		if end > len(data) {
			end = len(data)
		}
		fmt.Print(memutil.Dump(data[start:end], uintptr(start)))

		if !*allFlag {
			break
		}
		skip++
	}

	if matches == 0 {
		fmt.Println("No match found")
		os.Exit(1)
	}
	fmt.Printf("\n%d match(es)\n", matches)
}
