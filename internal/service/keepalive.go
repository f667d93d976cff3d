package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"stalkervod/internal/logging"
)

const defaultKeepaliveInterval = 30 * time.Second

// Pinger is the portal surface the keepalive needs.
type Pinger interface {
	Watchdog(ctx context.Context) error
}

// Keepalive pings the portal watchdog on an interval while playback is
// active. Start and Stop bracket a playback session; ticks never overlap
// because the loop pings synchronously.
type Keepalive struct {
	pinger   Pinger
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewKeepalive creates a watchdog pinger. An interval of zero or below uses
// the 30 second default.
func NewKeepalive(pinger Pinger, interval time.Duration, logger *slog.Logger) *Keepalive {
	if interval <= 0 {
		interval = defaultKeepaliveInterval
	}
	return &Keepalive{
		pinger:   pinger,
		interval: interval,
		logger:   logging.NewComponentLogger(logger, "keepalive"),
	}
}

// Start launches the ping loop. Calling Start while a loop is already
// running is a no-op.
func (k *Keepalive) Start(ctx context.Context) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	k.cancel = cancel
	k.done = make(chan struct{})
	go k.loop(loopCtx, k.done)
}

// Stop cancels the ping loop and waits for it to exit. Stopping an idle
// keepalive is a no-op.
func (k *Keepalive) Stop() {
	k.mu.Lock()
	cancel, done := k.cancel, k.done
	k.cancel, k.done = nil, nil
	k.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (k *Keepalive) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := k.pinger.Watchdog(ctx); err != nil {
				k.logger.Warn("watchdog ping failed", logging.Error(err))
			}
		}
	}
}
