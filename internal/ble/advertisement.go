// Package ble collects raw BLE advertisements from one of several scanners
// and hands them to the gateway one at a time.
package ble

import (
	"context"
	"time"
)

// Advertisement is one received advertising report.
type Advertisement struct {
	// Address is upper-case and colon separated.
	Address string
	// Data holds the AD structures as sent over the air.
	Data   []byte
	RSSI   int16
	SeenAt time.Time
}

// Source scans until ctx is cancelled or the scanner fails, calling onAdvert
// for every report. Cancellation is not an error.
type Source interface {
	Run(ctx context.Context, onAdvert func(Advertisement)) error
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, onAdvert func(Advertisement)) error

func (f SourceFunc) Run(ctx context.Context, onAdvert func(Advertisement)) error {
	return f(ctx, onAdvert)
}
