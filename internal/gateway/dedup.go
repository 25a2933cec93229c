package gateway

import "sync"

type dedupKey struct {
	address string
	tag     byte
}

// frameDeduper remembers the last frame counter per device and message tag.
// Sensors repeat each frame several times; a changed counter is a new
// measurement, including after the one-byte counter wraps.
type frameDeduper struct {
	mu   sync.Mutex
	last map[dedupKey]byte
}

func newFrameDeduper() *frameDeduper {
	return &frameDeduper{last: make(map[dedupKey]byte)}
}

// repeat records counter and reports whether it equals the previous one.
func (d *frameDeduper) repeat(address string, tag, counter byte) bool {
	k := dedupKey{address: address, tag: tag}
	d.mu.Lock()
	defer d.mu.Unlock()
	prev, seen := d.last[k]
	d.last[k] = counter
	return seen && prev == counter
}
