package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mijia-gateway/internal/advert"
	"mijia-gateway/internal/app"
	"mijia-gateway/internal/ble"
	"mijia-gateway/internal/config"
	"mijia-gateway/internal/devices"
	"mijia-gateway/internal/summary"
)

var (
	scanCmd = &cobra.Command{
		Use:   "scan [address...]",
		Short: "Scan for a while and print averaged readings",
		Long: "scan listens until every address reported --samples temperature and humidity samples " +
			"or --timeout elapsed, then prints one \"<TAG> <ADDR> <unix ts> <value>\" line per reading. " +
			"Addresses default to the devices in --devices.",
		RunE: func(cmd *cobra.Command, args []string) error {
			addresses := args
			if len(addresses) == 0 && scanDevices != "" {
				reg, err := devices.LoadFile(scanDevices)
				if err != nil {
					return err
				}
				addresses = reg.Addresses()
			}
			agg, err := summary.NewAggregator(addresses, scanSamples)
			if err != nil {
				return err
			}

			src, err := app.NewSource(config.Config{
				BLESource:  scanSource,
				BLEAdapter: scanAdapter,
				WSURL:      scanWSURL,
				SerialPort: scanSerialPort,
				SerialBaud: scanSerialBaud,
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), scanTimeout)
			defer cancel()
			if err := runScan(ctx, src, agg); err != nil {
				return err
			}
			return writeSummary(cmd.OutOrStdout(), scanOutput, agg.Lines())
		},
	}

	scanSamples    int
	scanTimeout    time.Duration
	scanOutput     string
	scanDevices    string
	scanSource     string
	scanAdapter    string
	scanWSURL      string
	scanSerialPort string
	scanSerialBaud int
)

func init() {
	f := scanCmd.Flags()
	f.IntVar(&scanSamples, "samples", 5, "temperature/humidity samples to collect per device")
	f.DurationVar(&scanTimeout, "timeout", 2*time.Minute, "stop scanning after this long")
	f.StringVarP(&scanOutput, "output", "o", "", "write the summary to this file instead of stdout")
	f.StringVar(&scanDevices, "devices", "", "devices file to take addresses from")
	f.StringVar(&scanSource, "source", config.SourceBlueZ, "advertisement source (bluez, hci, websocket, serial)")
	f.StringVar(&scanAdapter, "adapter", "hci0", "bluetooth adapter")
	f.StringVar(&scanWSURL, "ws-url", "", "websocket feed url")
	f.StringVar(&scanSerialPort, "serial-port", "/dev/ttyUSB0", "serial sniffer device")
	f.IntVar(&scanSerialBaud, "serial-baud", 115200, "serial sniffer baud rate")
}

// runScan feeds decoded advertisements into agg until it is complete or ctx
// ends. Running out of time is not an error.
func runScan(ctx context.Context, src ble.Source, agg *summary.Aggregator) error {
	feed, err := ble.NewFeed(src, agg.Addresses(), 64)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	feed.Start(ctx)

	logrus.WithField("addresses", agg.Addresses()).Info("scanning")
	for !agg.Complete() {
		a, ok := feed.Read(ctx)
		if !ok {
			break
		}
		rec, err := advert.DecodeAdvertisement(a.Data, a.Address)
		if err != nil {
			if !errors.Is(err, advert.ErrNotFound) {
				logrus.WithError(err).WithField("address", a.Address).Debug("advertisement rejected")
			}
			continue
		}
		agg.Add(rec, a.SeenAt)
		logrus.WithFields(logrus.Fields{
			"address": rec.Address,
			"device":  rec.DeviceType,
			"tag":     fmt.Sprintf("%02x", rec.Tag),
		}).Debug("reading")
	}

	if err := feed.Err(); err != nil {
		return err
	}
	if !agg.Complete() {
		logrus.Warn("scan ended before every device reported all samples")
	}
	return nil
}

func writeSummary(stdout io.Writer, path string, lines []summary.Line) error {
	if path == "" {
		return summary.Write(stdout, lines)
	}
	if err := summary.WriteFile(path, lines); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"path": path, "lines": len(lines)}).Info("summary written")
	return nil
}
