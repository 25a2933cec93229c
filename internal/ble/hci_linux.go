//go:build linux

package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/cmd"
)

// HCISource scans a raw HCI socket, bypassing BlueZ. It sees the
// advertising report exactly as received.
type HCISource struct {
	adapter string
}

func NewHCISource(adapter string) *HCISource {
	if adapter == "" {
		adapter = "hci0"
	}
	return &HCISource{adapter: adapter}
}

func (s *HCISource) Run(ctx context.Context, onAdvert func(Advertisement)) error {
	id, err := deviceID(s.adapter)
	if err != nil {
		return err
	}

	scanParams := cmd.LESetScanParameters{
		LEScanType:           0x00,   // passive
		LEScanInterval:       0x0010, // N * 0.625msec
		LEScanWindow:         0x0010,
		OwnAddressType:       0x00,
		ScanningFilterPolicy: 0x00,
	}
	d, err := linux.NewDevice(ble.OptDeviceID(id), ble.OptScanParams(scanParams))
	if err != nil {
		return fmt.Errorf("hci open (%s): %w", s.adapter, err)
	}
	defer func() { _ = d.Stop() }()

	slog.Info("ble: scanning started", "adapter", s.adapter, "backend", "hci")

	err = d.Scan(ctx, true, func(a ble.Advertisement) {
		data := rawAD(a)
		if len(data) == 0 {
			return
		}
		onAdvert(Advertisement{
			Address: a.Addr().String(),
			Data:    data,
			RSSI:    int16(a.RSSI()),
			SeenAt:  time.Now(),
		})
	})
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		slog.Info("ble: scanning stopped (context canceled)")
		return nil
	}
	if err != nil {
		return fmt.Errorf("hci scan: %w", err)
	}
	return nil
}

// rawAD prefers the undecoded report. Scan responses and older stacks only
// expose parsed fields, so fall back to rebuilding the service data AD.
func rawAD(a ble.Advertisement) []byte {
	if r, ok := a.(interface{ Data() []byte }); ok {
		if b := r.Data(); len(b) > 0 {
			return b
		}
	}
	mibeacon := ble.UUID16(MiBeaconUUID)
	for _, sd := range a.ServiceData() {
		if sd.UUID.Equal(mibeacon) && len(sd.Data) <= 252 {
			return serviceDataAD(sd.Data)
		}
	}
	return nil
}

func deviceID(adapter string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(adapter, "hci"))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid hci adapter %q", adapter)
	}
	return n, nil
}
