package ble

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"mijia-gateway/internal/utils"
)

// WebsocketSource reads advertisements relayed by an ESP32 scanner. Each text
// message is hex: the 6 address bytes followed by the AD bytes.
type WebsocketSource struct {
	url    string
	dialer *websocket.Dialer
}

func NewWebsocketSource(url string) *WebsocketSource {
	return &WebsocketSource{url: url, dialer: websocket.DefaultDialer}
}

// Run reconnects with backoff until ctx is cancelled.
func (s *WebsocketSource) Run(ctx context.Context, onAdvert func(Advertisement)) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		connected, err := s.session(ctx, onAdvert)
		if ctx.Err() != nil {
			slog.Info("ble: websocket source stopped (context canceled)")
			return nil
		}
		if connected {
			backoff = time.Second
		}
		slog.Warn("ble: websocket disconnected, retrying", "url", s.url, "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (s *WebsocketSource) session(ctx context.Context, onAdvert func(Advertisement)) (bool, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	slog.Info("ble: scanning started", "url", s.url, "backend", "websocket")
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("websocket read: %w", err)
		}
		a, err := ParseHexFrame(string(msg))
		if err != nil {
			slog.Debug("ble: bad websocket frame", "error", err)
			continue
		}
		a.SeenAt = time.Now()
		onAdvert(a)
	}
}

// ParseHexFrame parses "<12 hex address digits><hex AD bytes>".
func ParseHexFrame(s string) (Advertisement, error) {
	s = strings.TrimSpace(s)
	if len(s) < 12 {
		return Advertisement{}, fmt.Errorf("hex frame too short: %d chars", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Advertisement{}, fmt.Errorf("hex frame: %w", err)
	}
	return Advertisement{
		Address: utils.FormatAddress(b[:6]),
		Data:    b[6:],
	}, nil
}
