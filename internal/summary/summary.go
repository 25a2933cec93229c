// Package summary averages readings over a bounded scan and renders them as
// "<TAG> <ADDR> <unix ts> <value>" lines.
package summary

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"mijia-gateway/internal/advert"
	"mijia-gateway/internal/utils"
)

// Tags in output order. T and H are averaged; the rest report the last value.
var tags = []struct {
	tag      string
	name     advert.ReadingName
	averaged bool
}{
	{"T", advert.TemperatureFahrenheit, true},
	{"H", advert.RelativeHumidity, true},
	{"B", advert.BatteryPercentage, false},
	{"L", advert.Illuminance, false},
	{"M", advert.SoilMoisturePercentage, false},
	{"C", advert.Conductivity, false},
}

type series struct {
	sum   float64
	count int
	last  float64
	at    time.Time
}

type device struct {
	address    string
	deviceType advert.DeviceType
	series     map[advert.ReadingName]*series
}

// Aggregator collects readings for a fixed set of devices.
type Aggregator struct {
	samples int
	order   []*device
	byAddr  map[string]*device
}

// NewAggregator tracks addresses in the given order. Complete requires
// samples temperature (and, for hygrometers, humidity) readings per device;
// samples <= 0 never completes.
func NewAggregator(addresses []string, samples int) (*Aggregator, error) {
	if len(addresses) == 0 {
		return nil, fmt.Errorf("no addresses to scan for")
	}
	a := &Aggregator{samples: samples, byAddr: make(map[string]*device, len(addresses))}
	for _, raw := range addresses {
		addr, err := utils.NormalizeAddress(raw)
		if err != nil {
			return nil, err
		}
		if _, dup := a.byAddr[addr]; dup {
			continue
		}
		d := &device{address: addr, series: make(map[advert.ReadingName]*series)}
		a.order = append(a.order, d)
		a.byAddr[addr] = d
	}
	return a, nil
}

func (a *Aggregator) Addresses() []string {
	out := make([]string, len(a.order))
	for i, d := range a.order {
		out[i] = d.address
	}
	return out
}

// Add records the readings of rec. It reports false for devices not being
// scanned for.
func (a *Aggregator) Add(rec advert.Record, at time.Time) bool {
	d, ok := a.byAddr[rec.Address]
	if !ok {
		return false
	}
	if rec.DeviceType != "" {
		d.deviceType = rec.DeviceType
	}
	for name, r := range rec.Readings {
		s := d.series[name]
		if s == nil {
			s = &series{}
			d.series[name] = s
		}
		s.sum += r.Value
		s.count++
		s.last = r.Value
		s.at = at
	}
	return true
}

// Complete reports whether every device has at least the requested number of
// temperature samples, and of humidity samples unless it is a plant sensor.
// Battery, illuminance, moisture and conductivity never complete a device.
func (a *Aggregator) Complete() bool {
	if a.samples <= 0 {
		return false
	}
	for _, d := range a.order {
		if d.count(advert.TemperatureFahrenheit) < a.samples {
			return false
		}
		if reportsHumidity(d.deviceType) && d.count(advert.RelativeHumidity) < a.samples {
			return false
		}
	}
	return true
}

func (d *device) count(name advert.ReadingName) int {
	if s, ok := d.series[name]; ok {
		return s.count
	}
	return 0
}

// reportsHumidity is false only for the flower care sensor; a device whose
// type is not known yet is treated as a hygrometer.
func reportsHumidity(t advert.DeviceType) bool {
	return t != advert.HHCCJCY01
}

// Line is one output value.
type Line struct {
	Tag     string
	Address string
	Time    time.Time
	Value   string
}

func (l Line) String() string {
	return l.Tag + " " + l.Address + " " + strconv.FormatInt(l.Time.Unix(), 10) + " " + l.Value
}

// Lines renders the collected values, devices in scan order.
func (a *Aggregator) Lines() []Line {
	var out []Line
	for _, d := range a.order {
		for _, t := range tags {
			s, ok := d.series[t.name]
			if !ok || s.count == 0 {
				continue
			}
			var v string
			if t.averaged {
				v = strconv.FormatFloat(s.sum/float64(s.count), 'f', 1, 64)
			} else {
				v = strconv.FormatInt(int64(s.last), 10)
			}
			out = append(out, Line{Tag: t.tag, Address: d.address, Time: s.at, Value: v})
		}
	}
	return out
}

func Write(w io.Writer, lines []Line) error {
	for _, l := range lines {
		if _, err := io.WriteString(w, l.String()+"\n"); err != nil {
			return err
		}
	}
	return nil
}
