// Package gateway runs the read, decode, route and publish loop.
package gateway

import (
	"context"
	"errors"
	"log/slog"

	"mijia-gateway/internal/advert"
	"mijia-gateway/internal/ble"
	"mijia-gateway/internal/devices"
	"mijia-gateway/internal/utils"
)

// Reader yields advertisements until ctx is done or the scanner stops.
type Reader interface {
	Read(ctx context.Context) (ble.Advertisement, bool)
}

type Options struct {
	Registry  *devices.Registry
	Publisher Publisher
	Tracker   *Tracker
	// Dedup skips frames whose counter repeats the previous one for the
	// same device and message tag.
	Dedup  bool
	Logger *slog.Logger
}

type Gateway struct {
	registry *devices.Registry
	pub      Publisher
	tracker  *Tracker
	dedup    *frameDeduper
	logger   *slog.Logger
}

func New(opts Options) *Gateway {
	g := &Gateway{
		registry: opts.Registry,
		pub:      opts.Publisher,
		tracker:  opts.Tracker,
		logger:   opts.Logger,
	}
	if g.tracker == nil {
		g.tracker = NewTracker()
	}
	for _, d := range g.registry.Devices() {
		g.tracker.Register(d.Address, d.Name)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if opts.Dedup {
		g.dedup = newFrameDeduper()
	}
	return g
}

func (g *Gateway) Tracker() *Tracker { return g.tracker }

// Run handles advertisements until the reader is exhausted. Every failure is
// per advertisement; the loop only ends with the reader.
func (g *Gateway) Run(ctx context.Context, r Reader) error {
	g.logger.Info("gateway: processing advertisements", "devices", g.registry.Len())
	for {
		a, ok := r.Read(ctx)
		if !ok {
			g.logger.Info("gateway: advertisement stream ended")
			return nil
		}
		_, _ = g.Handle(a)
	}
}

// Handle decodes one advertisement and publishes its mapped readings. It
// returns the number of messages published.
func (g *Gateway) Handle(a ble.Advertisement) (int, error) {
	g.tracker.Seen(a.Address, a.RSSI, a.SeenAt)

	rec, err := advert.DecodeAdvertisement(a.Data, a.Address)
	if err != nil {
		g.tracker.Rejected(a.Address)
		level := slog.LevelInfo
		if errors.Is(err, advert.ErrNotFound) {
			level = slog.LevelDebug
		}
		g.logger.Log(context.Background(), level, "gateway: advertisement rejected",
			"addr", a.Address,
			"error", err,
			"data", utils.HexDump(a.Data),
		)
		return 0, err
	}

	if g.dedup != nil && g.dedup.repeat(rec.Address, rec.Tag, rec.FrameCounter) {
		g.logger.Debug("gateway: repeated frame", "addr", rec.Address, "counter", rec.FrameCounter, "tag", rec.Tag)
		return 0, nil
	}
	g.tracker.Decoded(rec)

	routes, err := g.registry.Route(rec.Address, rec.Readings)
	if err != nil {
		g.logger.Info("gateway: no configuration for device",
			"addr", rec.Address,
			"device_type", rec.DeviceType,
			"error", err,
		)
		return 0, err
	}

	published := 0
	for _, route := range routes {
		body := route.Reading.Body()
		if err := g.pub.Publish(route.Topic, body); err != nil {
			g.logger.Warn("gateway: publish failed", "addr", rec.Address, "topic", route.Topic, "error", err)
			continue
		}
		published++
		g.logger.Debug("gateway: published",
			"addr", rec.Address,
			"device_type", rec.DeviceType,
			"topic", route.Topic,
			"body", string(body),
		)
	}
	g.tracker.Published(rec.Address, published)
	return published, nil
}
