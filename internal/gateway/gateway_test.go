package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mijia-gateway/internal/advert"
	"mijia-gateway/internal/ble"
	"mijia-gateway/internal/devices"
	"mijia-gateway/internal/testutil"
)

const (
	livingRoom = "4C:65:A8:D0:12:34"
	ficus      = "C4:7C:8D:6A:3E:1F"
	stranger   = "58:2D:34:10:AB:CD"
)

type message struct {
	topic string
	body  string
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []message
	retained []message
	failOn   string
}

func (p *fakePublisher) Publish(topic string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if topic == p.failOn {
		return errors.New("broker unavailable")
	}
	p.messages = append(p.messages, message{topic: topic, body: string(body)})
	return nil
}

func (p *fakePublisher) PublishRetained(topic string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retained = append(p.retained, message{topic: topic, body: string(body)})
	return nil
}

// sliceReader yields its advertisements, then reports the end of the stream.
type sliceReader struct {
	items []ble.Advertisement
}

func (r *sliceReader) Read(ctx context.Context) (ble.Advertisement, bool) {
	if ctx.Err() != nil || len(r.items) == 0 {
		return ble.Advertisement{}, false
	}
	a := r.items[0]
	r.items = r.items[1:]
	return a, true
}

func testRegistry(t *testing.T) *devices.Registry {
	t.Helper()
	reg, err := devices.NewRegistry([]devices.Device{
		{
			Address: livingRoom,
			Name:    "living room",
			Topics: map[advert.ReadingName]string{
				advert.TemperatureFahrenheit: "home/living/temperature",
				advert.RelativeHumidity:      "home/living/humidity",
				advert.BatteryPercentage:     "home/living/battery",
			},
		},
		{
			Address: ficus,
			Topics: map[advert.ReadingName]string{
				advert.Conductivity: "garden/ficus/conductivity",
			},
		},
	})
	require.NoError(t, err)
	return reg
}

func newTestGateway(t *testing.T, pub Publisher, dedup bool) *Gateway {
	t.Helper()
	return New(Options{
		Registry:  testRegistry(t),
		Publisher: pub,
		Dedup:     dedup,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func adv(t *testing.T, addr, fixture string) ble.Advertisement {
	t.Helper()
	return ble.Advertisement{
		Address: addr,
		Data:    testutil.LoadAdvert(t, fixture),
		RSSI:    -70,
		SeenAt:  time.Now(),
	}
}

func TestHandle_PublishesMappedReadings(t *testing.T) {
	pub := &fakePublisher{}
	g := newTestGateway(t, pub, true)

	n, err := g.Handle(adv(t, livingRoom, "lywsdcgq_temperature_humidity"))
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []message{
		{topic: "home/living/temperature", body: `{"v": 70.7}`},
		{topic: "home/living/humidity", body: `{"v": 38.0}`},
	}, pub.messages)
}

func TestHandle_UnmappedReadingDropped(t *testing.T) {
	pub := &fakePublisher{}
	g := newTestGateway(t, pub, true)

	n, err := g.Handle(adv(t, ficus, "hhccjcy01_moisture"))
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, pub.messages)

	n, err = g.Handle(adv(t, ficus, "hhccjcy01_conductivity"))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, message{topic: "garden/ficus/conductivity", body: `{"v": 350}`}, pub.messages[0])
}

func TestHandle_UnknownDeviceType(t *testing.T) {
	pub := &fakePublisher{}
	g := newTestGateway(t, pub, true)

	n, err := g.Handle(adv(t, livingRoom, "unknown_device"))
	require.ErrorIs(t, err, advert.ErrUnknownDeviceType)
	require.Zero(t, n)
	require.Empty(t, pub.messages)

	status := g.Tracker().Snapshot(time.Minute)
	require.Equal(t, uint64(1), status[0].Rejected)
}

func TestHandle_UnconfiguredAddress(t *testing.T) {
	pub := &fakePublisher{}
	g := newTestGateway(t, pub, true)

	n, err := g.Handle(adv(t, stranger, "cgg1_uuid_list"))
	require.ErrorIs(t, err, devices.ErrUnknownDevice)
	require.Zero(t, n)
	require.Empty(t, pub.messages)
	require.Len(t, g.Tracker().Snapshot(time.Minute), 2, "strangers are not tracked")
}

func TestHandle_NoMarker(t *testing.T) {
	g := newTestGateway(t, &fakePublisher{}, true)

	_, err := g.Handle(ble.Advertisement{Address: livingRoom, Data: []byte{0x02, 0x01, 0x06}})
	require.ErrorIs(t, err, advert.ErrNotFound)
}

func TestHandle_Dedup(t *testing.T) {
	pub := &fakePublisher{}
	g := newTestGateway(t, pub, true)
	a := adv(t, livingRoom, "lywsdcgq_temperature_humidity")

	n, err := g.Handle(a)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = g.Handle(a)
	require.NoError(t, err)
	require.Zero(t, n, "repeated frame counter")

	// A different message type with its own counter still goes through.
	n, err = g.Handle(adv(t, livingRoom, "lywsdcgq_battery"))
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestHandle_DedupDisabled(t *testing.T) {
	pub := &fakePublisher{}
	g := newTestGateway(t, pub, false)
	a := adv(t, livingRoom, "lywsdcgq_temperature_humidity")

	_, _ = g.Handle(a)
	n, err := g.Handle(a)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, pub.messages, 4)
}

func TestHandle_PublishFailureContinues(t *testing.T) {
	pub := &fakePublisher{failOn: "home/living/temperature"}
	g := newTestGateway(t, pub, true)

	n, err := g.Handle(adv(t, livingRoom, "lywsdcgq_temperature_humidity"))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "home/living/humidity", pub.messages[0].topic)
}

func TestRun_ContinuesPastFailures(t *testing.T) {
	pub := &fakePublisher{}
	g := newTestGateway(t, pub, true)

	r := &sliceReader{items: []ble.Advertisement{
		adv(t, livingRoom, "unknown_device"),
		adv(t, stranger, "cgg1_uuid_list"),
		{Address: livingRoom, Data: []byte{1, 2, 3}},
		adv(t, livingRoom, "lywsdcgq_battery"),
	}}

	require.NoError(t, g.Run(context.Background(), r))
	require.Equal(t, []message{{topic: "home/living/battery", body: `{"v": 93}`}}, pub.messages)

	status := g.Tracker().Snapshot(time.Minute)
	require.Equal(t, livingRoom, status[0].Address)
	require.Equal(t, uint64(1), status[0].Published)
	require.Equal(t, uint64(2), status[0].Rejected)
	require.Equal(t, advert.LYWSDCGQ, status[0].DeviceType)
	require.Equal(t, 93.0, status[0].Readings[advert.BatteryPercentage])
}

func TestRun_StopsOnCancel(t *testing.T) {
	g := newTestGateway(t, &fakePublisher{}, true)

	feed, err := ble.NewFeed(ble.SourceFunc(func(ctx context.Context, _ func(ble.Advertisement)) error {
		<-ctx.Done()
		return nil
	}), nil, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	feed.Start(ctx)

	done := make(chan error, 1)
	go func() { done <- g.Run(ctx, feed) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
