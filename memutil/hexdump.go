package memutil

import (
	"fmt"
	"strings"
)

// DumpOptions customizes hexdump output.
type DumpOptions struct {
	// BytesPerLine is the number of bytes rendered per line.
	BytesPerLine int

	// BaseAddress is added to the offset column, so a dump of copied
	// memory shows the addresses it came from.
	BaseAddress uintptr

	// ShowASCII appends the printable-character column.
	ShowASCII bool
}

// DefaultDumpOptions matches the familiar 16-bytes-with-ASCII layout.
func DefaultDumpOptions() DumpOptions {
	return DumpOptions{BytesPerLine: 16, ShowASCII: true}
}

// Dump renders data with the default options.
func Dump(data []byte, base uintptr) string {
	opts := DefaultDumpOptions()
	opts.BaseAddress = base
	return DumpWith(data, opts)
}

// DumpWith renders data as hexdump text.
func DumpWith(data []byte, opts DumpOptions) string {
	if opts.BytesPerLine <= 0 {
		opts.BytesPerLine = 16
	}

	var sb strings.Builder
	for lineStart := 0; lineStart < len(data); lineStart += opts.BytesPerLine {
		lineEnd := lineStart + opts.BytesPerLine
		if lineEnd > len(data) {
			lineEnd = len(data)
		}
		line := data[lineStart:lineEnd]

		fmt.Fprintf(&sb, "%016x  ", uint64(opts.BaseAddress)+uint64(lineStart))

		for i := 0; i < opts.BytesPerLine; i++ {
			if i < len(line) {
				fmt.Fprintf(&sb, "%02x ", line[i])
			} else {
				sb.WriteString("   ")
			}
			if i == opts.BytesPerLine/2-1 {
				sb.WriteByte(' ')
			}
		}

		if opts.ShowASCII {
			sb.WriteString(" |")
			for _, b := range line {
				if b >= 0x20 && b < 0x7F {
					sb.WriteByte(b)
				} else {
					sb.WriteByte('.')
				}
			}
			sb.WriteByte('|')
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
