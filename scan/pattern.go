// Package scan parses textual byte signatures and searches memory for them.
package scan

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadPattern is returned when a signature string contains a token that is
// neither a wildcard nor a two-digit hex byte.
var ErrBadPattern = errors.New("malformed byte pattern")

// Pattern is a byte signature with wildcard positions. Bytes and Mask always
// have the same length; a mask byte of 0xFF requires an exact match and 0x00
// matches anything.
type Pattern struct {
	Bytes []byte
	Mask  []byte
}

// ParsePattern parses a comma-separated signature such as "48,8B,?,89".
// A token of "?" or "??" is a wildcard; any other token must be a hex byte.
func ParsePattern(signature string) (Pattern, error) {
	tokens := strings.Split(signature, ",")
	pattern := Pattern{
		Bytes: make([]byte, 0, len(tokens)),
		Mask:  make([]byte, 0, len(tokens)),
	}

	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "?" || token == "??" {
			pattern.Bytes = append(pattern.Bytes, 0x00)
			pattern.Mask = append(pattern.Mask, 0x00)
			continue
		}
		value, err := strconv.ParseUint(token, 16, 8)
		if err != nil {
			return Pattern{}, fmt.Errorf("%w: token %q in %q", ErrBadPattern, token, signature)
		}
		pattern.Bytes = append(pattern.Bytes, byte(value))
		pattern.Mask = append(pattern.Mask, 0xFF)
	}

	if len(pattern.Bytes) == 0 {
		return Pattern{}, fmt.Errorf("%w: empty signature", ErrBadPattern)
	}
	return pattern, nil
}

// Len returns the signature length in bytes.
func (p Pattern) Len() int { return len(p.Bytes) }

// IsValid reports whether the pattern is non-empty and internally consistent.
func (p Pattern) IsValid() bool {
	return len(p.Bytes) > 0 && len(p.Bytes) == len(p.Mask)
}

// IsWildcard reports whether position i matches any byte.
func (p Pattern) IsWildcard(i int) bool { return p.Mask[i] == 0x00 }

// MatchesAt reports whether the pattern matches data starting at offset.
// The caller guarantees offset+Len() <= len(data).
func (p Pattern) MatchesAt(data []byte, offset int) bool {
	for i := range p.Bytes {
		if p.Mask[i] != 0x00 && data[offset+i] != p.Bytes[i] {
			return false
		}
	}
	return true
}

// String reconstructs the textual signature form.
func (p Pattern) String() string {
	var sb strings.Builder
	for i := range p.Bytes {
		if i > 0 {
			sb.WriteByte(',')
		}
		if p.IsWildcard(i) {
			sb.WriteByte('?')
		} else {
			fmt.Fprintf(&sb, "%02X", p.Bytes[i])
		}
	}
	return sb.String()
}
