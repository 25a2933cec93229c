package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"mijia-gateway/internal/ble"
	"mijia-gateway/internal/config"
	"mijia-gateway/internal/gateway"
	"mijia-gateway/internal/httpapi"
	"mijia-gateway/internal/mqtt"
)

// publisher is what the gateway needs from the broker side.
type publisher interface {
	gateway.Publisher
	gateway.RetainedPublisher
}

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("initializing gateway",
		"mqtt_broker", cfg.MQTTBroker,
		"mqtt_port", cfg.MQTTPort,
		"mqtt_client_id", cfg.MQTTClientID,
		"ble_source", cfg.BLESource,
		"dry_run", cfg.DryRun,
	)

	registry, err := LoadRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	slog.Info("devices loaded", "count", registry.Len(), "addresses", registry.Addresses())

	var (
		pub  publisher
		conn httpapi.ConnectionChecker
	)
	if cfg.DryRun {
		pub = gateway.DryRunPublisher{Logger: slog.Default()}
	} else {
		mqttClient, err := mqtt.NewClient(cfg, slog.Default())
		if err != nil {
			return err
		}
		if err := mqttClient.Connect(ctx); err != nil {
			return err
		}
		defer mqttClient.Disconnect()
		pub, conn = mqttClient, mqttClient
	}

	src, err := NewSource(cfg)
	if err != nil {
		return err
	}
	addresses := cfg.BLEAddresses
	if len(addresses) == 0 {
		addresses = registry.Addresses()
	}
	feed, err := ble.NewFeed(src, addresses, cfg.FeedBuffer)
	if err != nil {
		return err
	}

	gw := gateway.New(gateway.Options{
		Registry:  registry,
		Publisher: pub,
		Dedup:     cfg.Dedup,
		Logger:    slog.Default(),
	})

	g, gctx := errgroup.WithContext(ctx)
	feed.Start(gctx)

	g.Go(func() error {
		if err := gw.Run(gctx, feed); err != nil {
			return err
		}
		if err := feed.Err(); err != nil {
			return fmt.Errorf("ble source: %w", err)
		}
		if gctx.Err() == nil {
			return errors.New("ble source stopped")
		}
		return nil
	})

	g.Go(func() error {
		gateway.RunHealth(gctx, pub, gw.Tracker(), cfg.MQTTTopicPrefix, cfg.HealthInterval, cfg.StaleAfter)
		return nil
	})

	if cfg.HTTPAddr != "" {
		g.Go(func() error {
			mux := httpapi.NewMux(conn, gw.Tracker(), cfg.StaleAfter)
			if err := httpapi.Serve(gctx, cfg.HTTPAddr, mux); err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	err = g.Wait()
	slog.Info("gateway shutting down", "dropped_advertisements", feed.Dropped())
	return err
}
