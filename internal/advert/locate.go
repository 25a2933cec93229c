package advert

import (
	"github.com/pkg/errors"
)

// Service data marker: the 16-bit Xiaomi service UUID 0xFE95, little-endian.
const (
	markerByte0 = 0x95
	markerByte1 = 0xFE
)

// markerOffsets are probed in order. Offset 5 directly follows the flags AD
// structure; offset 9 is where the service data starts when a 16-bit service
// UUID list precedes it, in which case offset 5 matches the UUID list too.
var markerOffsets = [...]int{9, 5}

// Locate returns the bytes following the first marker found at one of the
// known offsets.
func Locate(raw []byte) ([]byte, error) {
	for _, p := range markerOffsets {
		if p+1 >= len(raw) {
			continue
		}
		if raw[p] == markerByte0 && raw[p+1] == markerByte1 {
			return raw[p+2:], nil
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "%d bytes", len(raw))
}
