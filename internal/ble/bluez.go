package ble

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tinygo.org/x/bluetooth"
)

// MiBeaconUUID is the 16-bit service UUID Xiaomi sensors advertise under.
const MiBeaconUUID uint16 = 0xFE95

// BlueZSource scans through BlueZ over D-Bus.
type BlueZSource struct {
	adapter     *bluetooth.Adapter
	adapterName string
}

func NewBlueZSource(adapter string) *BlueZSource {
	if adapter == "" {
		adapter = "hci0"
	}
	return &BlueZSource{
		adapter:     bluetooth.NewAdapter(adapter),
		adapterName: adapter,
	}
}

func (s *BlueZSource) Run(ctx context.Context, onAdvert func(Advertisement)) error {
	slog.Info("ble: enabling adapter", "adapter", s.adapterName)
	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("ble enable (%s): %w", s.adapterName, err)
	}

	go func() {
		<-ctx.Done()
		_ = s.adapter.StopScan()
	}()

	slog.Info("ble: scanning started", "adapter", s.adapterName, "backend", "bluez")

	// Scan blocks until StopScan() or error.
	err := s.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
		data := r.Bytes()
		if len(data) == 0 {
			data = synthesizeAD(r.ServiceData())
		}
		if len(data) == 0 {
			return
		}
		onAdvert(Advertisement{
			Address: r.Address.String(),
			Data:    data,
			RSSI:    r.RSSI,
			SeenAt:  time.Now(),
		})
	})

	if ctx.Err() != nil {
		slog.Info("ble: scanning stopped (context canceled)")
		return nil
	}
	if err != nil {
		return fmt.Errorf("ble scan: %w", err)
	}
	slog.Info("ble: scanning stopped")
	return nil
}

// synthesizeAD rebuilds the AD bytes BlueZ parsed away: a flags structure
// followed by the MiBeacon service data, which puts the marker at offset 5.
func synthesizeAD(elements []bluetooth.ServiceDataElement) []byte {
	mibeacon := bluetooth.New16BitUUID(MiBeaconUUID)
	for _, el := range elements {
		if el.UUID != mibeacon {
			continue
		}
		if len(el.Data) > 252 {
			return nil
		}
		return serviceDataAD(el.Data)
	}
	return nil
}

func serviceDataAD(data []byte) []byte {
	out := make([]byte, 0, 7+len(data))
	out = append(out, 0x02, 0x01, 0x06)
	out = append(out, byte(3+len(data)), 0x16, byte(MiBeaconUUID&0xff), byte(MiBeaconUUID>>8))
	return append(out, data...)
}
