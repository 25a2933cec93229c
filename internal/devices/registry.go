// Package devices holds the per-device topic configuration: which readings of
// which sensor go to which MQTT topic.
package devices

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"mijia-gateway/internal/advert"
	"mijia-gateway/internal/utils"
)

var ErrUnknownDevice = stderrors.New("device not configured")

// Device maps the readings of one sensor to topics. Readings without a topic
// are not published.
type Device struct {
	Address string                        `json:"address"`
	Name    string                        `json:"name,omitempty"`
	Topics  map[advert.ReadingName]string `json:"topics"`
}

// Route is one publish: the reading and where it goes.
type Route struct {
	Topic   string
	Reading advert.Reading
}

// Registry is read-only once built and safe for concurrent use.
type Registry struct {
	devices map[string]Device
}

// NewRegistry validates and indexes devices by normalized address.
func NewRegistry(devices []Device) (*Registry, error) {
	r := &Registry{devices: make(map[string]Device, len(devices))}
	for i, d := range devices {
		addr, err := utils.NormalizeAddress(d.Address)
		if err != nil {
			return nil, fmt.Errorf("device %d: %w", i, err)
		}
		if _, dup := r.devices[addr]; dup {
			return nil, fmt.Errorf("device %s configured twice", addr)
		}
		topics := make(map[advert.ReadingName]string, len(d.Topics))
		for name, topic := range d.Topics {
			if !name.Valid() {
				return nil, fmt.Errorf("device %s: unknown reading %q", addr, name)
			}
			topic = strings.TrimSpace(topic)
			if topic == "" {
				return nil, fmt.Errorf("device %s: empty topic for %s", addr, name)
			}
			if strings.ContainsAny(topic, "+#") {
				return nil, fmt.Errorf("device %s: wildcard in topic %q", addr, topic)
			}
			topics[name] = topic
		}
		r.devices[addr] = Device{Address: addr, Name: strings.TrimSpace(d.Name), Topics: topics}
	}
	return r, nil
}

// Addresses returns the configured addresses, sorted.
func (r *Registry) Addresses() []string {
	out := make([]string, 0, len(r.devices))
	for addr := range r.devices {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// Devices returns every device, sorted by address.
func (r *Registry) Devices() []Device {
	out := make([]Device, 0, len(r.devices))
	for _, addr := range r.Addresses() {
		out = append(out, r.devices[addr])
	}
	return out
}

func (r *Registry) Len() int { return len(r.devices) }

func (r *Registry) Lookup(address string) (Device, bool) {
	addr, err := utils.NormalizeAddress(address)
	if err != nil {
		return Device{}, false
	}
	d, ok := r.devices[addr]
	return d, ok
}

// Route pairs each reading with the device's topic for it, in reading-name
// order. Readings the device has no topic for are dropped.
func (r *Registry) Route(address string, readings advert.Readings) ([]Route, error) {
	d, ok := r.Lookup(address)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownDevice, "address %s", address)
	}
	var routes []Route
	for _, reading := range readings.Sorted() {
		topic, ok := d.Topics[reading.Name]
		if !ok {
			continue
		}
		routes = append(routes, Route{Topic: topic, Reading: reading})
	}
	return routes, nil
}
