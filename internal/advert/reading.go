package advert

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ReadingName identifies one decoded value. The names double as the keys of
// the per-device topic mapping.
type ReadingName string

const (
	TemperatureFahrenheit  ReadingName = "temperature_fahrenheit"
	RelativeHumidity       ReadingName = "relative_humidity"
	BatteryPercentage      ReadingName = "battery_percentage"
	Illuminance            ReadingName = "illuminance"
	SoilMoisturePercentage ReadingName = "soil_moisture_percentage"
	Conductivity           ReadingName = "conductivity"
)

// ReadingNames lists every reading in publish order.
var ReadingNames = []ReadingName{
	TemperatureFahrenheit,
	RelativeHumidity,
	BatteryPercentage,
	Illuminance,
	SoilMoisturePercentage,
	Conductivity,
}

func (n ReadingName) Valid() bool {
	switch n {
	case TemperatureFahrenheit, RelativeHumidity, BatteryPercentage,
		Illuminance, SoilMoisturePercentage, Conductivity:
		return true
	}
	return false
}

// Integral reports whether values of this reading are counts rather than
// measurements with a fractional part.
func (n ReadingName) Integral() bool {
	switch n {
	case TemperatureFahrenheit, RelativeHumidity:
		return false
	}
	return true
}

// ParseReadingName accepts a reading name in any case.
func ParseReadingName(s string) (ReadingName, error) {
	n := ReadingName(strings.ToLower(strings.TrimSpace(s)))
	if !n.Valid() {
		return "", fmt.Errorf("unknown reading %q", s)
	}
	return n, nil
}

func (n ReadingName) order() int {
	for i, name := range ReadingNames {
		if name == n {
			return i
		}
	}
	return len(ReadingNames)
}

// Reading is a single decoded value.
type Reading struct {
	Name  ReadingName
	Value float64
}

// FormatValue renders the value as a plain decimal: counts without a
// fractional part, measurements always with one.
func (r Reading) FormatValue() string {
	if r.Name.Integral() {
		return strconv.FormatInt(int64(r.Value), 10)
	}
	s := strconv.FormatFloat(r.Value, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Body returns the publish payload {"v": <value>}.
func (r Reading) Body() []byte {
	return []byte(`{"v": ` + r.FormatValue() + `}`)
}

// Readings holds the values decoded from one tagged message.
type Readings map[ReadingName]Reading

func (rs Readings) set(name ReadingName, v float64) {
	rs[name] = Reading{Name: name, Value: v}
}

// Sorted returns the readings in publish order.
func (rs Readings) Sorted() []Reading {
	out := make([]Reading, 0, len(rs))
	for _, r := range rs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name.order() < out[j].Name.order() })
	return out
}
