package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"stalkervod/internal/logging"
)

type fakePinger struct {
	mu    sync.Mutex
	pings int
}

func (f *fakePinger) Watchdog(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return nil
}

func (f *fakePinger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

func TestKeepalivePingsWhileRunning(t *testing.T) {
	pinger := &fakePinger{}
	keepalive := NewKeepalive(pinger, 10*time.Millisecond, logging.NewNop())

	keepalive.Start(context.Background())
	time.Sleep(100 * time.Millisecond)
	keepalive.Stop()

	pinged := pinger.count()
	if pinged == 0 {
		t.Fatal("expected at least one watchdog ping")
	}

	// No more pings after Stop.
	time.Sleep(50 * time.Millisecond)
	if got := pinger.count(); got != pinged {
		t.Fatalf("pings continued after Stop: %d then %d", pinged, got)
	}
}

func TestKeepaliveStartIsIdempotent(t *testing.T) {
	pinger := &fakePinger{}
	keepalive := NewKeepalive(pinger, time.Hour, logging.NewNop())

	keepalive.Start(context.Background())
	keepalive.Start(context.Background())
	keepalive.Stop()

	// Second Stop on an idle keepalive must not block or panic.
	keepalive.Stop()
}

func TestKeepaliveStopsOnParentCancel(t *testing.T) {
	pinger := &fakePinger{}
	keepalive := NewKeepalive(pinger, 10*time.Millisecond, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	keepalive.Start(ctx)
	cancel()
	time.Sleep(50 * time.Millisecond)

	pinged := pinger.count()
	time.Sleep(50 * time.Millisecond)
	if got := pinger.count(); got != pinged {
		t.Fatalf("pings continued after parent cancel: %d then %d", pinged, got)
	}
	keepalive.Stop()
}
