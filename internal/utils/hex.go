package utils

const hexDigits = "0123456789abcdef"

// Hex4 formats a uint16 as 4 lower-case hex digits (e.g. "fe95").
func Hex4(v uint16) string {
	return string([]byte{
		hexDigits[(v>>12)&0xF],
		hexDigits[(v>>8)&0xF],
		hexDigits[(v>>4)&0xF],
		hexDigits[v&0xF],
	})
}

// HexDump renders each byte as "%02x " so rejected advertisements can be
// compared with raw captures.
func HexDump(b []byte) string {
	out := make([]byte, 0, len(b)*3)
	for _, x := range b {
		out = append(out, hexDigits[x>>4], hexDigits[x&0x0F], ' ')
	}
	return string(out)
}
