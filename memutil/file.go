package memutil

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// WriteBufferToFile dumps data to path through a file-backed mapping. Used to
// capture memory regions for offline diffing against the on-disk image.
func WriteBufferToFile(path string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("refusing to write empty buffer to %s", path)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	if err := file.Truncate(int64(len(data))); err != nil {
		return fmt.Errorf("truncate %s: %w", path, err)
	}

	mapped, err := mmap.Map(file, mmap.RDWR, 0)
	if err != nil {
		return fmt.Errorf("map %s: %w", path, err)
	}
	defer mapped.Unmap()

	copy(mapped, data)
	if err := mapped.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return nil
}

// ReadFileBuffer maps path read-only and returns a copy of its contents.
// The copy keeps callers free of mapping lifetime concerns; scans over very
// large files should map the file themselves.
func ReadFileBuffer(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	mapped, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", path, err)
	}
	defer mapped.Unmap()

	out := make([]byte, len(mapped))
	copy(out, mapped)
	return out, nil
}
