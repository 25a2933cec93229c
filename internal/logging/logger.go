package logging

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"mijia-gateway/internal/config"
)

// New returns a colored text logger in dev and a JSON logger otherwise.
func New(cfg config.Config, version string, appName string) *slog.Logger {
	if cfg.AppEnv == "dev" {
		h := tint.NewHandler(os.Stdout, &tint.Options{
			Level:      cfg.LogLevel,
			AddSource:  cfg.LogLevel <= slog.LevelDebug,
			TimeFormat: time.Kitchen,
		})
		return slog.New(h).With("app", appName, "version", version)
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})
	return slog.New(h).With(
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
		"ble_source", cfg.BLESource,
		"mqtt_client_id", cfg.MQTTClientID,
	)
}
