package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"mijia-gateway/internal/utils"
)

// Feed turns a push style Source into a blocking Read. Only advertisements
// from whitelisted addresses are queued; when the queue is full new ones are
// dropped.
type Feed struct {
	src   Source
	allow map[string]struct{}
	ch    chan Advertisement

	startOnce sync.Once
	done      chan struct{}
	errMu     sync.Mutex
	err       error

	dropped atomic.Uint64
}

// NewFeed prepares a feed for the given addresses. An empty list accepts
// every address.
func NewFeed(src Source, addresses []string, buffer int) (*Feed, error) {
	if src == nil {
		return nil, fmt.Errorf("ble feed: nil source")
	}
	if buffer <= 0 {
		return nil, fmt.Errorf("ble feed: buffer must be positive, got %d", buffer)
	}
	allow := make(map[string]struct{}, len(addresses))
	for _, a := range addresses {
		addr, err := utils.NormalizeAddress(a)
		if err != nil {
			return nil, fmt.Errorf("ble feed: %w", err)
		}
		allow[addr] = struct{}{}
	}
	return &Feed{
		src:   src,
		allow: allow,
		ch:    make(chan Advertisement, buffer),
		done:  make(chan struct{}),
	}, nil
}

// Start runs the source in the background. Calling it again is a no-op.
func (f *Feed) Start(ctx context.Context) {
	f.startOnce.Do(func() {
		go func() {
			defer close(f.done)
			err := f.src.Run(ctx, f.offer)
			if err != nil && ctx.Err() == nil {
				slog.Error("ble: source stopped", "error", err)
				f.errMu.Lock()
				f.err = err
				f.errMu.Unlock()
			}
		}()
	})
}

// Read blocks until an advertisement is available. It returns false once ctx
// is cancelled or the source has stopped and the queue is drained.
func (f *Feed) Read(ctx context.Context) (Advertisement, bool) {
	select {
	case <-ctx.Done():
		return Advertisement{}, false
	case a := <-f.ch:
		return a, true
	case <-f.done:
		select {
		case a := <-f.ch:
			return a, true
		default:
			return Advertisement{}, false
		}
	}
}

// Err reports why the source stopped, if it failed.
func (f *Feed) Err() error {
	f.errMu.Lock()
	defer f.errMu.Unlock()
	return f.err
}

func (f *Feed) Dropped() uint64 {
	return f.dropped.Load()
}

func (f *Feed) Allowed(address string) bool {
	if len(f.allow) == 0 {
		return true
	}
	_, ok := f.allow[address]
	return ok
}

func (f *Feed) offer(a Advertisement) {
	addr, err := utils.NormalizeAddress(a.Address)
	if err != nil {
		slog.Debug("ble: bad address", "addr", a.Address, "error", err)
		return
	}
	if !f.Allowed(addr) {
		return
	}
	a.Address = addr
	a.Data = append([]byte(nil), a.Data...)

	select {
	case f.ch <- a:
	default:
		if n := f.dropped.Add(1); n == 1 || n%100 == 0 {
			slog.Warn("ble: feed full, dropping advertisements", "addr", addr, "dropped", n)
		}
	}
}
