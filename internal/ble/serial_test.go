package ble

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func frameBody() []byte {
	body := []byte{0x4C, 0x65, 0xA8, 0xD0, 0x12, 0x34, 0xC4} // address, rssi -60
	return append(body, 0x02, 0x01, 0x06, 0x03, 0x16, 0x95, 0xFE)
}

func TestReadFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, frameBody()))
	require.NoError(t, WriteFrame(&buf, frameBody()[:7]))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, frameBody(), got)

	got, err = ReadFrame(&buf)
	require.NoError(t, err)
	require.Len(t, got, 7)

	_, err = ReadFrame(&buf)
	require.ErrorIs(t, err, io.EOF)
}

func TestReadFrame_CRCMismatchSkipsFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, frameBody()))
	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xFF
	require.NoError(t, WriteFrame(&buf, frameBody()))

	_, err := ReadFrame(&buf)
	require.ErrorIs(t, err, ErrFrameCRC)

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, frameBody(), got)
}

func TestReadFrame_BadLength(t *testing.T) {
	for _, n := range []uint32{0, 6, frameMaxBody + 1, 1 << 30} {
		var header [4]byte
		binary.BigEndian.PutUint32(header[:], n)
		_, err := ReadFrame(bytes.NewReader(header[:]))
		require.ErrorIs(t, err, ErrFrameLength, "length %d", n)
	}
}

func TestReadFrame_Truncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, frameBody()))
	truncated := buf.Bytes()[:buf.Len()-3]

	_, err := ReadFrame(bytes.NewReader(truncated))
	require.True(t, errors.Is(err, io.ErrUnexpectedEOF), "err = %v", err)
}
