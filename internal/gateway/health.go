package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// HealthTopic is the retained per-device health topic.
func HealthTopic(prefix, address string) string {
	return fmt.Sprintf("%s/%s/health", prefix, address)
}

// PublishHealth publishes every device's status once.
func PublishHealth(pub RetainedPublisher, t *Tracker, prefix string, staleAfter time.Duration) error {
	var firstErr error
	for _, s := range t.Snapshot(staleAfter) {
		body, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshal health: %w", err)
		}
		if err := pub.PublishRetained(HealthTopic(prefix, s.Address), body); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RunHealth publishes health every interval until ctx is done. A zero
// interval disables it.
func RunHealth(ctx context.Context, pub RetainedPublisher, t *Tracker, prefix string, interval, staleAfter time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := PublishHealth(pub, t, prefix, staleAfter); err != nil {
				slog.Warn("gateway: health publish failed", "error", err)
			}
		}
	}
}
