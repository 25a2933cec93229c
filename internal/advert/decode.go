// Package advert decodes Xiaomi MiBeacon service data found in BLE
// advertisements broadcast by Mijia sensors.
package advert

import (
	stderrors "errors"

	"github.com/pkg/errors"

	"mijia-gateway/internal/utils"
)

var (
	ErrNotFound                = stderrors.New("marker 95 fe not found")
	ErrUnknownDeviceType       = stderrors.New("unknown device type")
	ErrMessageTooShort         = stderrors.New("message too short")
	ErrUnrecognizedMessage     = stderrors.New("unrecognized message")
	ErrUnrecognizedMessageType = stderrors.New("unrecognized message type")
)

// DeviceType is the product classification carried in payload bytes 2 and 3.
type DeviceType string

const (
	HHCCJCY01 DeviceType = "HHCCJCY01" // flower care plant sensor
	CGG1      DeviceType = "CGG1"      // clock hygrometer
	LYWSDCGQ  DeviceType = "LYWSDCGQ"  // round hygrometer
)

// ClassifyDevice maps the two product id bytes to a known device type.
func ClassifyDevice(b2, b3 byte) (DeviceType, bool) {
	switch {
	case b2 == 0x98 && b3 == 0x00:
		return HHCCJCY01, true
	case b2 == 0x47 && b3 == 0x03:
		return CGG1, true
	case b2 == 0xAA && b3 == 0x01:
		return LYWSDCGQ, true
	}
	return "", false
}

// Payload layout after the marker: frame control (2), product id (2), frame
// counter (1), reversed MAC (6), optional capability byte, tagged message.
const (
	capabilityFlag     = 0x20
	headerLen          = 11
	headerLenWithCap   = 12
	messageSubtype     = 0x10
	messageHeaderLen   = 3
	classificationSize = 4
)

// Tags of the tagged message.
const (
	TagTemperature         byte = 0x04
	TagHumidity            byte = 0x06
	TagIlluminance         byte = 0x07
	TagSoilMoisture        byte = 0x08
	TagConductivity        byte = 0x09
	TagBattery             byte = 0x0A
	TagTemperatureHumidity byte = 0x0D
)

// Record is a decoded advertisement.
type Record struct {
	Address    string
	DeviceType DeviceType
	// ProductID is the little-endian product id, e.g. 0x01aa.
	ProductID    uint16
	FrameControl byte
	FrameCounter byte
	// BeaconAddress is the MAC the sensor embeds in the frame.
	BeaconAddress string
	Tag           byte
	Message       []byte
	Readings      Readings
}

// DecodeAdvertisement locates the service data in raw and decodes it.
func DecodeAdvertisement(raw []byte, address string) (Record, error) {
	payload, err := Locate(raw)
	if err != nil {
		return Record{}, err
	}
	return Decode(payload, address)
}

// Decode parses the service data that follows the marker.
func Decode(payload []byte, address string) (Record, error) {
	if len(payload) < classificationSize {
		return Record{}, errors.Wrapf(ErrMessageTooShort, "payload is %d bytes", len(payload))
	}
	deviceType, ok := ClassifyDevice(payload[2], payload[3])
	if !ok {
		return Record{}, errors.Wrapf(ErrUnknownDeviceType, "%02x %02x", payload[2], payload[3])
	}

	skip := headerLen
	if payload[0]&capabilityFlag != 0 {
		skip = headerLenWithCap
	}
	if len(payload) < skip+messageHeaderLen {
		return Record{}, errors.Wrapf(ErrMessageTooShort, "payload is %d bytes, header needs %d", len(payload), skip+messageHeaderLen)
	}
	msg := payload[skip:]

	if msg[1] != messageSubtype || int(msg[2]) != len(msg)-messageHeaderLen {
		return Record{}, errors.Wrapf(ErrUnrecognizedMessage, "subtype %02x, declared length %d, actual %d", msg[1], msg[2], len(msg)-messageHeaderLen)
	}

	readings, err := decodeMessage(msg)
	if err != nil {
		return Record{}, err
	}

	return Record{
		Address:       address,
		DeviceType:    deviceType,
		ProductID:     uint16At(payload[3], payload[2]),
		FrameControl:  payload[0],
		FrameCounter:  payload[4],
		BeaconAddress: utils.ReversedAddress(payload[5:11]),
		Tag:           msg[0],
		Message:       msg,
		Readings:      readings,
	}, nil
}

func decodeMessage(msg []byte) (Readings, error) {
	tag, n := msg[0], msg[2]
	rs := make(Readings, 2)
	switch {
	case tag == TagTemperatureHumidity && n == 4:
		rs.set(TemperatureFahrenheit, fahrenheit(msg[4], msg[3]))
		rs.set(RelativeHumidity, tenths(uint16At(msg[6], msg[5])))
	case tag == TagBattery && n == 1:
		rs.set(BatteryPercentage, float64(msg[3]))
	case tag == TagTemperature && n == 2:
		rs.set(TemperatureFahrenheit, fahrenheit(msg[4], msg[3]))
	case tag == TagHumidity && n == 2:
		rs.set(RelativeHumidity, tenths(uint16At(msg[4], msg[3])))
	case tag == TagIlluminance && n == 3:
		lux := uint32(msg[5])<<16 | uint32(msg[4])<<8 | uint32(msg[3])
		rs.set(Illuminance, float64(lux))
	case tag == TagSoilMoisture && n == 1:
		rs.set(SoilMoisturePercentage, float64(msg[3]))
	case tag == TagConductivity && n == 2:
		rs.set(Conductivity, float64(uint16At(msg[4], msg[3])))
	default:
		return nil, errors.Wrapf(ErrUnrecognizedMessageType, "tag %02x length %d", tag, n)
	}
	return rs, nil
}

// uint16At combines two bytes where the higher payload offset holds the high
// byte.
func uint16At(hi, lo byte) uint16 {
	return uint16(hi)<<8 | uint16(lo)
}

func tenths(v uint16) float64 {
	return float64(v) / 10
}

// Temperatures are signed tenths of a degree Celsius.
func fahrenheit(hi, lo byte) float64 {
	celsius := float64(int16(uint16At(hi, lo))) / 10
	return celsius*9/5 + 32
}
