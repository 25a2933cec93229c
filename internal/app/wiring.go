package app

import (
	"context"
	"fmt"
	"log/slog"

	"mijia-gateway/internal/ble"
	"mijia-gateway/internal/config"
	"mijia-gateway/internal/db"
	"mijia-gateway/internal/devices"
)

// NewSource picks the advertisement scanner named by BLE_SOURCE.
func NewSource(cfg config.Config) (ble.Source, error) {
	switch cfg.BLESource {
	case config.SourceBlueZ:
		return ble.NewBlueZSource(cfg.BLEAdapter), nil
	case config.SourceHCI:
		return ble.NewHCISource(cfg.BLEAdapter), nil
	case config.SourceWebsocket:
		return ble.NewWebsocketSource(cfg.WSURL), nil
	case config.SourceSerial:
		return ble.NewSerialSource(cfg.SerialPort, cfg.SerialBaud), nil
	default:
		return nil, fmt.Errorf("unknown ble source %q", cfg.BLESource)
	}
}

// LoadRegistry reads the device configuration from DEVICES_FILE, or from the
// SQLite store when no file is set. An empty configuration is an error.
func LoadRegistry(ctx context.Context, cfg config.Config) (*devices.Registry, error) {
	var (
		reg *devices.Registry
		err error
	)
	if cfg.DevicesFile != "" {
		reg, err = devices.LoadFile(cfg.DevicesFile)
	} else {
		reg, err = loadFromStore(ctx, cfg.SQLitePath)
	}
	if err != nil {
		return nil, fmt.Errorf("load devices: %w", err)
	}
	if reg.Len() == 0 {
		return nil, fmt.Errorf("no devices configured")
	}
	return reg, nil
}

func loadFromStore(ctx context.Context, path string) (*devices.Registry, error) {
	conn, err := db.Open(path, slog.Default())
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close(conn) }()

	if _, err := db.Migrate(ctx, conn); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return devices.NewStore(conn).Load(ctx)
}
