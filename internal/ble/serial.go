package ble

import (
	"bufio"
	"context"
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/sigurn/crc16"
	"github.com/tarm/serial"

	"mijia-gateway/internal/utils"
)

// Serial frames are: uint32 big-endian body length, body, CRC16/MODBUS of the
// body (big-endian). The body is the 6 address bytes, a signed RSSI byte and
// the AD bytes.
const (
	frameHeaderLen  = 4
	frameCRCLen     = 2
	frameMinBody    = 7
	frameMaxBody    = 7 + 31 + 31 // address, rssi, adv data + scan response
	serialReadRetry = 2 * time.Second
)

var (
	ErrFrameLength = stderrors.New("bad frame length")
	ErrFrameCRC    = stderrors.New("frame crc mismatch")
)

var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// SerialSource reads framed advertisements from a UART sniffer dongle.
type SerialSource struct {
	port string
	baud int
}

func NewSerialSource(port string, baud int) *SerialSource {
	return &SerialSource{port: port, baud: baud}
}

func (s *SerialSource) Run(ctx context.Context, onAdvert func(Advertisement)) error {
	port, err := serial.OpenPort(&serial.Config{
		Name:   s.port,
		Baud:   s.baud,
		Parity: serial.ParityNone,
	})
	if err != nil {
		return fmt.Errorf("serial open %s: %w", s.port, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = port.Close() })
	defer func() {
		if stop() {
			_ = port.Close()
		}
	}()

	slog.Info("ble: scanning started", "port", s.port, "baud", s.baud, "backend", "serial")

	r := bufio.NewReader(port)
	for {
		body, err := ReadFrame(r)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			slog.Info("ble: serial source stopped (context canceled)")
			return nil
		case stderrors.Is(err, ErrFrameCRC), stderrors.Is(err, ErrFrameLength):
			slog.Debug("ble: dropping serial frame", "error", err)
			continue
		case stderrors.Is(err, io.EOF):
			return fmt.Errorf("serial %s closed", s.port)
		default:
			slog.Warn("ble: serial read failed", "port", s.port, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(serialReadRetry):
			}
			continue
		}

		a := Advertisement{
			Address: utils.FormatAddress(body[:6]),
			RSSI:    int16(int8(body[6])),
			Data:    body[7:],
			SeenAt:  time.Now(),
		}
		onAdvert(a)
	}
}

// ReadFrame reads one frame and returns its verified body. After a length
// error the reader is positioned after the bad header; after a CRC error it
// is positioned after the whole frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [frameHeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n < frameMinBody || n > frameMaxBody {
		return nil, errors.Wrapf(ErrFrameLength, "%d", n)
	}

	buf := make([]byte, int(n)+frameCRCLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	body, sum := buf[:n], binary.BigEndian.Uint16(buf[n:])
	if got := crc16.Checksum(body, crcTable); got != sum {
		return nil, errors.Wrapf(ErrFrameCRC, "got %04x want %04x", got, sum)
	}
	return body, nil
}

// WriteFrame is the inverse of ReadFrame.
func WriteFrame(w io.Writer, body []byte) error {
	out := make([]byte, frameHeaderLen, frameHeaderLen+len(body)+frameCRCLen)
	binary.BigEndian.PutUint32(out, uint32(len(body)))
	out = append(out, body...)
	out = binary.BigEndian.AppendUint16(out, crc16.Checksum(body, crcTable))
	_, err := w.Write(out)
	return err
}
