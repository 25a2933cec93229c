package advert

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mijia-gateway/internal/testutil"
)

func TestDecodeAdvertisementFixtures(t *testing.T) {
	fixtures := []struct {
		name       string
		deviceType DeviceType
		tag        byte
		counter    byte
		want       map[ReadingName]float64
	}{
		{
			name:       "lywsdcgq_temperature_humidity",
			deviceType: LYWSDCGQ,
			tag:        TagTemperatureHumidity,
			counter:    0x5a,
			want:       map[ReadingName]float64{TemperatureFahrenheit: 70.7, RelativeHumidity: 38.0},
		},
		{
			name:       "lywsdcgq_battery",
			deviceType: LYWSDCGQ,
			tag:        TagBattery,
			counter:    0x5b,
			want:       map[ReadingName]float64{BatteryPercentage: 93},
		},
		{
			name:       "cgg1_uuid_list",
			deviceType: CGG1,
			tag:        TagTemperatureHumidity,
			counter:    0x12,
			want:       map[ReadingName]float64{TemperatureFahrenheit: 68.0, RelativeHumidity: 45.0},
		},
		{
			name:       "hhccjcy01_illuminance",
			deviceType: HHCCJCY01,
			tag:        TagIlluminance,
			counter:    0x6b,
			want:       map[ReadingName]float64{Illuminance: 356},
		},
		{
			name:       "hhccjcy01_moisture",
			deviceType: HHCCJCY01,
			tag:        TagSoilMoisture,
			counter:    0x6c,
			want:       map[ReadingName]float64{SoilMoisturePercentage: 42},
		},
		{
			name:       "hhccjcy01_conductivity",
			deviceType: HHCCJCY01,
			tag:        TagConductivity,
			counter:    0x6d,
			want:       map[ReadingName]float64{Conductivity: 350},
		},
		{
			name:       "hhccjcy01_temperature",
			deviceType: HHCCJCY01,
			tag:        TagTemperature,
			counter:    0x6e,
			want:       map[ReadingName]float64{TemperatureFahrenheit: 30.2},
		},
	}

	for _, tc := range fixtures {
		t.Run(tc.name, func(t *testing.T) {
			raw := testutil.LoadAdvert(t, tc.name)
			rec, err := DecodeAdvertisement(raw, "AA:BB:CC:DD:EE:FF")
			require.NoError(t, err)
			require.Equal(t, tc.deviceType, rec.DeviceType)
			require.Equal(t, tc.tag, rec.Tag)
			require.Equal(t, tc.counter, rec.FrameCounter)
			require.Equal(t, "AA:BB:CC:DD:EE:FF", rec.Address)
			require.Len(t, rec.Readings, len(tc.want))
			for name, v := range tc.want {
				got, ok := rec.Readings[name]
				require.True(t, ok, "missing reading %s", name)
				require.Equal(t, name, got.Name)
				require.InDelta(t, v, got.Value, 1e-9, "reading %s", name)
			}
		})
	}
}

func TestDecodeAdvertisement_UnknownDeviceType(t *testing.T) {
	raw := testutil.LoadAdvert(t, "unknown_device")
	_, err := DecodeAdvertisement(raw, "AA:BB:CC:DD:EE:FF")
	require.ErrorIs(t, err, ErrUnknownDeviceType)
	require.Contains(t, err.Error(), "00 00")
}

func TestDecode_BatteryWithoutCapability(t *testing.T) {
	raw := make([]byte, 22)
	raw[5], raw[6] = 0x95, 0xFE
	payload := raw[7:]
	payload[0] = 0x50 // bit 5 clear: 11 byte header
	payload[2], payload[3] = 0x98, 0x00
	copy(payload[11:], []byte{0x0A, 0x10, 0x01, 0x64})

	rec, err := DecodeAdvertisement(raw, "C4:7C:8D:6A:3E:1F")
	require.NoError(t, err)
	require.Equal(t, HHCCJCY01, rec.DeviceType)
	require.Equal(t, Readings{BatteryPercentage: {Name: BatteryPercentage, Value: 100}}, rec.Readings)
}

func TestDecode_TemperatureHumidityWithCapability(t *testing.T) {
	payload := []byte{
		0x70, 0x20, 0x47, 0x03, 0x01,
		0xCD, 0xAB, 0x10, 0x34, 0x2D, 0x58,
		0x09,
		0x0D, 0x10, 0x04, 0xC8, 0x00, 0xC2, 0x01,
	}

	rec, err := Decode(payload, "58:2D:34:10:AB:CD")
	require.NoError(t, err)
	require.Equal(t, CGG1, rec.DeviceType)
	require.InDelta(t, 68.0, rec.Readings[TemperatureFahrenheit].Value, 1e-9)
	require.InDelta(t, 45.0, rec.Readings[RelativeHumidity].Value, 1e-9)
}

func TestDecode_LengthBoundary(t *testing.T) {
	header := []byte{0x50, 0x20, 0xAA, 0x01, 0x01, 1, 2, 3, 4, 5, 6}
	build := func(msg ...byte) []byte {
		return append(append([]byte(nil), header...), msg...)
	}

	tests := []struct {
		name    string
		payload []byte
		wantErr error
	}{
		{name: "exact", payload: build(0x0A, 0x10, 0x01, 0x50)},
		{name: "declared one more", payload: build(0x0A, 0x10, 0x02, 0x50), wantErr: ErrUnrecognizedMessage},
		{name: "declared one less", payload: build(0x0A, 0x10, 0x00, 0x50), wantErr: ErrUnrecognizedMessage},
		{name: "trailing byte", payload: build(0x0A, 0x10, 0x01, 0x50, 0x00), wantErr: ErrUnrecognizedMessage},
		{name: "wrong subtype", payload: build(0x0A, 0x11, 0x01, 0x50), wantErr: ErrUnrecognizedMessage},
		{name: "only two message bytes", payload: build(0x0A, 0x10), wantErr: ErrMessageTooShort},
		{name: "empty message", payload: build(), wantErr: ErrMessageTooShort},
		{name: "no classification", payload: []byte{0x50, 0x20, 0xAA}, wantErr: ErrMessageTooShort},
		{name: "battery with two bytes", payload: build(0x0A, 0x10, 0x02, 0x50, 0x00), wantErr: ErrUnrecognizedMessageType},
		{name: "unknown tag", payload: build(0x0B, 0x10, 0x01, 0x50), wantErr: ErrUnrecognizedMessageType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.payload, "4C:65:A8:D0:12:34")
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDecode_HeaderFields(t *testing.T) {
	raw := testutil.LoadAdvert(t, "lywsdcgq_temperature_humidity")
	rec, err := DecodeAdvertisement(raw, "4C:65:A8:D0:12:34")
	require.NoError(t, err)
	require.Equal(t, uint16(0x01AA), rec.ProductID)
	require.Equal(t, byte(0x50), rec.FrameControl)
	require.Equal(t, "4C:65:A8:D0:12:34", rec.BeaconAddress)

	raw = testutil.LoadAdvert(t, "cgg1_uuid_list")
	rec, err = DecodeAdvertisement(raw, "")
	require.NoError(t, err)
	require.Equal(t, uint16(0x0347), rec.ProductID)
	require.Equal(t, "58:2D:34:10:AB:CD", rec.BeaconAddress)
}

func TestDecode_Idempotent(t *testing.T) {
	raw := testutil.LoadAdvert(t, "lywsdcgq_temperature_humidity")
	first, err := DecodeAdvertisement(raw, "4C:65:A8:D0:12:34")
	require.NoError(t, err)
	second, err := DecodeAdvertisement(raw, "4C:65:A8:D0:12:34")
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestDecode_ByteOrder(t *testing.T) {
	header := []byte{0x50, 0x20, 0xAA, 0x01, 0x01, 1, 2, 3, 4, 5, 6}
	payload := append(append([]byte(nil), header...), 0x09, 0x10, 0x02, 0x34, 0x12)

	rec, err := Decode(payload, "")
	require.NoError(t, err)
	require.Equal(t, float64(0x1234), rec.Readings[Conductivity].Value)
}

func TestDecode_NegativeTemperature(t *testing.T) {
	header := []byte{0x50, 0x20, 0xAA, 0x01, 0x01, 1, 2, 3, 4, 5, 6}
	// 0xff38 is -200 tenths: -20.0 C.
	payload := append(append([]byte(nil), header...), 0x04, 0x10, 0x02, 0x38, 0xFF)

	rec, err := Decode(payload, "")
	require.NoError(t, err)
	got := rec.Readings[TemperatureFahrenheit]
	require.InDelta(t, -4.0, got.Value, 1e-9)
	require.Equal(t, `{"v": -4.0}`, string(got.Body()))
}

func TestClassifyDevice(t *testing.T) {
	tests := []struct {
		b2, b3 byte
		want   DeviceType
		ok     bool
	}{
		{0x98, 0x00, HHCCJCY01, true},
		{0x47, 0x03, CGG1, true},
		{0xAA, 0x01, LYWSDCGQ, true},
		{0x00, 0x98, "", false},
		{0x00, 0x00, "", false},
	}
	for _, tt := range tests {
		got, ok := ClassifyDevice(tt.b2, tt.b3)
		require.Equal(t, tt.ok, ok, "%02x %02x", tt.b2, tt.b3)
		require.Equal(t, tt.want, got, "%02x %02x", tt.b2, tt.b3)
	}
}
