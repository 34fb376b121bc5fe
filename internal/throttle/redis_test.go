package throttle

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

func newTestRedisWindow(t *testing.T, limit int, window time.Duration, clock *fakeClock) (*RedisWindow, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	rw := NewRedisWindow(client, "sites:netlify", limit, window, 0, log)
	rw.now = clock.Now
	rw.sleep = clock.Sleep
	rw.fallback.now = clock.Now
	rw.fallback.sleep = clock.Sleep
	return rw, mr
}

func TestRedisWindowSharesBudgetAcrossInstances(t *testing.T) {
	clock := newFakeClock()
	first, mr := newTestRedisWindow(t, 2, time.Second, clock)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	second := NewRedisWindow(client, "sites:netlify", 2, time.Second, 0, first.logger)
	second.now = clock.Now
	second.sleep = clock.Sleep

	start := clock.Now()
	noop := func(context.Context) error { return nil }
	if err := first.Execute(context.Background(), noop); err != nil {
		t.Fatalf("first execute: %v", err)
	}
	if err := second.Execute(context.Background(), noop); err != nil {
		t.Fatalf("second execute: %v", err)
	}
	if !clock.Now().Equal(start) {
		t.Fatal("expected no wait while under the shared limit")
	}

	if err := second.Execute(context.Background(), noop); err != nil {
		t.Fatalf("third execute: %v", err)
	}
	if waited := clock.Now().Sub(start); waited < time.Second {
		t.Fatalf("expected third call to wait for the window, waited %v", waited)
	}
}

func TestRedisWindowFallsBackWhenRedisDown(t *testing.T) {
	clock := newFakeClock()
	rw, mr := newTestRedisWindow(t, 1, time.Second, clock)
	mr.Close()

	ran := 0
	for i := 0; i < 2; i++ {
		if err := rw.Execute(context.Background(), func(context.Context) error {
			ran++
			return nil
		}); err != nil {
			t.Fatalf("execute: %v", err)
		}
	}
	if ran != 2 {
		t.Fatalf("expected both calls to run through the fallback, got %d", ran)
	}
	if callsInWindow(rw.fallback) != 1 {
		t.Fatalf("expected fallback window to track calls, got %d", callsInWindow(rw.fallback))
	}
}
