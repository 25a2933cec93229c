package utils

import (
	"fmt"
	"strings"
)

// NormalizeAddress accepts a MAC address with ':' or '-' separators, or none,
// in any case, and returns it as upper-case colon separated hex.
func NormalizeAddress(s string) (string, error) {
	clean := strings.NewReplacer(":", "", "-", "", " ", "").Replace(strings.TrimSpace(s))
	if len(clean) != 12 {
		return "", fmt.Errorf("invalid address %q", s)
	}
	b := make([]byte, 6)
	for i := range b {
		hi, ok1 := nibble(clean[2*i])
		lo, ok2 := nibble(clean[2*i+1])
		if !ok1 || !ok2 {
			return "", fmt.Errorf("invalid address %q", s)
		}
		b[i] = hi<<4 | lo
	}
	return FormatAddress(b), nil
}

// FormatAddress renders 6 bytes as "AA:BB:CC:DD:EE:FF".
func FormatAddress(b []byte) string {
	const digits = "0123456789ABCDEF"
	out := make([]byte, 0, len(b)*3)
	for i, x := range b {
		if i > 0 {
			out = append(out, ':')
		}
		out = append(out, digits[x>>4], digits[x&0x0F])
	}
	return string(out)
}

// ReversedAddress formats a little-endian MAC as carried inside beacon frames.
func ReversedAddress(b []byte) string {
	r := make([]byte, len(b))
	for i, x := range b {
		r[len(b)-1-i] = x
	}
	return FormatAddress(r)
}

func nibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
