package main

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mijia-gateway/internal/advert"
	"mijia-gateway/internal/devices"
	"mijia-gateway/internal/utils"
)

var (
	decodeCmd = &cobra.Command{
		Use:   "decode [hex]",
		Short: "Decode a captured advertisement",
		Long: "decode parses the AD bytes of one advertisement and prints the decoded record as JSON. " +
			"Without an argument it reads one advertisement per line from stdin.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var reg *devices.Registry
			if decodeDevices != "" {
				r, err := devices.LoadFile(decodeDevices)
				if err != nil {
					return err
				}
				reg = r
			}
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				return runInteractive(cmd.InOrStdin(), out, reg)
			}
			return runDecode(out, args[0], decodeAddr, reg)
		},
	}

	decodeAddr    string
	decodeDevices string
)

func init() {
	decodeCmd.Flags().StringVar(&decodeAddr, "addr", "", "advertiser address (default: the address embedded in the frame)")
	decodeCmd.Flags().StringVar(&decodeDevices, "devices", "", "devices file used to show the topics readings would be published to")
}

func runInteractive(in io.Reader, out io.Writer, reg *devices.Registry) error {
	scanner := bufio.NewScanner(in)
	logrus.Info("mijiactl decode mode. Paste advertisement hex and press Enter (Ctrl+D to exit).")
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := runDecode(out, line, decodeAddr, reg); err != nil {
			logrus.WithError(err).Error("failed to decode advertisement")
		}
	}
	return scanner.Err()
}

type readingView struct {
	Name  advert.ReadingName `json:"name"`
	Value json.RawMessage    `json:"value"`
	Topic string             `json:"topic,omitempty"`
}

type recordView struct {
	Address       string        `json:"address"`
	BeaconAddress string        `json:"beacon_address"`
	DeviceType    string        `json:"device_type"`
	ProductID     string        `json:"product_id"`
	FrameControl  string        `json:"frame_control"`
	FrameCounter  int           `json:"frame_counter"`
	Tag           string        `json:"tag"`
	Message       string        `json:"message"`
	Readings      []readingView `json:"readings"`
}

func runDecode(out io.Writer, s, addr string, reg *devices.Registry) error {
	raw, err := parseHex(s)
	if err != nil {
		return err
	}
	if addr != "" {
		if addr, err = utils.NormalizeAddress(addr); err != nil {
			return err
		}
	}
	rec, err := advert.DecodeAdvertisement(raw, addr)
	if err != nil {
		return err
	}
	if rec.Address == "" {
		rec.Address = rec.BeaconAddress
	}

	view := newRecordView(rec)
	if reg != nil {
		routes, err := reg.Route(rec.Address, rec.Readings)
		switch {
		case errors.Is(err, devices.ErrUnknownDevice):
			logrus.WithField("address", rec.Address).Warn("device not in devices file")
		case err != nil:
			return err
		}
		topics := make(map[advert.ReadingName]string, len(routes))
		for _, r := range routes {
			topics[r.Reading.Name] = r.Topic
		}
		for i := range view.Readings {
			view.Readings[i].Topic = topics[view.Readings[i].Name]
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}

func newRecordView(rec advert.Record) recordView {
	v := recordView{
		Address:       rec.Address,
		BeaconAddress: rec.BeaconAddress,
		DeviceType:    string(rec.DeviceType),
		ProductID:     utils.Hex4(rec.ProductID),
		FrameControl:  fmt.Sprintf("%02x", rec.FrameControl),
		FrameCounter:  int(rec.FrameCounter),
		Tag:           fmt.Sprintf("%02x", rec.Tag),
		Message:       strings.TrimSpace(utils.HexDump(rec.Message)),
	}
	for _, r := range rec.Readings.Sorted() {
		v.Readings = append(v.Readings, readingView{Name: r.Name, Value: json.RawMessage(r.FormatValue())})
	}
	return v
}

// parseHex accepts "0201...", "02 01 ..." and "02:01:..." forms.
func parseHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "", "\t", "").Replace(strings.TrimSpace(s))
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return b, nil
}
