package gateway

import (
	"sort"
	"sync"
	"time"

	"mijia-gateway/internal/advert"
)

// DeviceStatus is the health view of one sensor.
type DeviceStatus struct {
	Address    string                         `json:"address"`
	Name       string                         `json:"name,omitempty"`
	DeviceType advert.DeviceType              `json:"device_type,omitempty"`
	LastSeen   *time.Time                     `json:"last_seen,omitempty"`
	RSSI       int16                          `json:"rssi"`
	Published  uint64                         `json:"published"`
	Rejected   uint64                         `json:"rejected"`
	Readings   map[advert.ReadingName]float64 `json:"readings,omitempty"`
	Healthy    bool                           `json:"healthy"`
}

// Tracker keeps per-device counters for health reporting. Only registered
// devices are tracked. Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	devices map[string]*DeviceStatus
	now     func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{devices: make(map[string]*DeviceStatus), now: time.Now}
}

// Register lists a configured device before it has been heard.
func (t *Tracker) Register(address, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.devices[address]
	if !ok {
		s = &DeviceStatus{Address: address}
		t.devices[address] = s
	}
	s.Name = name
}

func (t *Tracker) Seen(address string, rssi int16, at time.Time) {
	if at.IsZero() {
		at = t.now()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.get(address)
	if s == nil {
		return
	}
	s.LastSeen = &at
	s.RSSI = rssi
}

func (t *Tracker) Decoded(rec advert.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.get(rec.Address)
	if s == nil {
		return
	}
	s.DeviceType = rec.DeviceType
	if s.Readings == nil {
		s.Readings = make(map[advert.ReadingName]float64)
	}
	for name, r := range rec.Readings {
		s.Readings[name] = r.Value
	}
}

func (t *Tracker) Published(address string, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s := t.get(address); s != nil {
		s.Published += uint64(n)
	}
}

func (t *Tracker) Rejected(address string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s := t.get(address); s != nil {
		s.Rejected++
	}
}

// Snapshot copies every device's status, sorted by address. A device is
// healthy when it was seen within staleAfter.
func (t *Tracker) Snapshot(staleAfter time.Duration) []DeviceStatus {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]DeviceStatus, 0, len(t.devices))
	for _, s := range t.devices {
		c := *s
		if s.LastSeen != nil {
			seen := *s.LastSeen
			c.LastSeen = &seen
			c.Healthy = now.Sub(seen) <= staleAfter
		}
		if s.Readings != nil {
			c.Readings = make(map[advert.ReadingName]float64, len(s.Readings))
			for k, v := range s.Readings {
				c.Readings[k] = v
			}
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

func (t *Tracker) get(address string) *DeviceStatus {
	return t.devices[address]
}
