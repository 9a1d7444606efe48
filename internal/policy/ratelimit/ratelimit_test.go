package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/JakeFAU/market-harvester/internal/metrics"
)

func TestLimiterWait(t *testing.T) {
	metrics.Init()

	// 10 RPS with burst 1 means the second token arrives ~100ms after the first.
	l := New(Config{
		DefaultRPS:   10,
		DefaultBurst: 1,
	})

	ctx := context.Background()

	start := time.Now()
	if err := l.Wait(ctx, "amazon"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Logf("warning: first wait took %v", time.Since(start))
	}

	start = time.Now()
	if err := l.Wait(ctx, "amazon"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if waited := time.Since(start); waited < 50*time.Millisecond {
		t.Errorf("expected second wait to be throttled, waited only %v", waited)
	}
}

func TestLimiterIsolatesMarkets(t *testing.T) {
	metrics.Init()

	l := New(Config{
		DefaultRPS:   1,
		DefaultBurst: 1,
	})
	ctx := context.Background()

	if err := l.Wait(ctx, "amazon"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A different market has its own bucket and should not be throttled.
	start := time.Now()
	if err := l.Wait(ctx, "ebay"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if waited := time.Since(start); waited > 100*time.Millisecond {
		t.Errorf("expected ebay wait to be immediate, waited %v", waited)
	}
}

func TestLimiterWaitHonorsContext(t *testing.T) {
	metrics.Init()

	l := New(Config{
		DefaultRPS:   0.001,
		DefaultBurst: 1,
	})
	ctx := context.Background()

	if err := l.Wait(ctx, "etsy"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := l.Wait(cancelCtx, "etsy"); err == nil {
		t.Fatal("expected context deadline error, got nil")
	}
}

func TestLimiterZeroRPSIsUnlimited(t *testing.T) {
	metrics.Init()

	l := New(Config{DefaultRPS: 0})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 20; i++ {
		if err := l.Wait(ctx, "walmart"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if waited := time.Since(start); waited > 100*time.Millisecond {
		t.Errorf("expected unlimited waits to be immediate, took %v", waited)
	}
}

func TestSetMarketRate(t *testing.T) {
	metrics.Init()

	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})
	l.SetMarketRate("shopify", 0, 0)

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 10; i++ {
		if err := l.Wait(ctx, "shopify"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if waited := time.Since(start); waited > 100*time.Millisecond {
		t.Errorf("expected overridden market to be unlimited, took %v", waited)
	}
}
