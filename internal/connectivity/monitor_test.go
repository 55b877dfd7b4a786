package connectivity

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestMonitorCachesWithinTTL(t *testing.T) {
	t.Parallel()

	probeCalls := 0
	monitor := NewMonitor(func(ctx context.Context) bool {
		probeCalls++
		return true
	}, 10*time.Second, zap.NewNop())

	current := time.Unix(1_700_000_000, 0)
	monitor.now = func() time.Time { return current }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if !monitor.Online(ctx) {
			t.Fatal("Online() = false, want true")
		}
	}
	if probeCalls != 1 {
		t.Fatalf("probe calls = %d, want 1 (cached within TTL)", probeCalls)
	}
}

func TestMonitorReprobesAfterTTL(t *testing.T) {
	t.Parallel()

	results := []bool{true, false}
	probeCalls := 0
	monitor := NewMonitor(func(ctx context.Context) bool {
		result := results[probeCalls%len(results)]
		probeCalls++
		return result
	}, 10*time.Second, zap.NewNop())

	current := time.Unix(1_700_000_000, 0)
	monitor.now = func() time.Time { return current }

	ctx := context.Background()
	if !monitor.Online(ctx) {
		t.Fatal("first Online() = false, want true")
	}

	current = current.Add(11 * time.Second)
	if monitor.Online(ctx) {
		t.Fatal("second Online() = true, want false after TTL expiry")
	}
	if probeCalls != 2 {
		t.Fatalf("probe calls = %d, want 2", probeCalls)
	}
}

func TestMonitorInvalidateForcesReprobe(t *testing.T) {
	t.Parallel()

	probeCalls := 0
	monitor := NewMonitor(func(ctx context.Context) bool {
		probeCalls++
		return true
	}, time.Hour, zap.NewNop())

	ctx := context.Background()
	monitor.Online(ctx)
	monitor.Online(ctx)
	if probeCalls != 1 {
		t.Fatalf("probe calls = %d, want 1", probeCalls)
	}

	monitor.Invalidate()
	monitor.Online(ctx)
	if probeCalls != 2 {
		t.Fatalf("probe calls = %d, want 2 after Invalidate", probeCalls)
	}
}

func TestNewMonitorAppliesDefaults(t *testing.T) {
	t.Parallel()

	monitor := NewMonitor(func(ctx context.Context) bool { return true }, 0, nil)
	if monitor.ttl != defaultTTL {
		t.Fatalf("ttl = %s, want %s", monitor.ttl, defaultTTL)
	}
	if monitor.logger == nil {
		t.Fatal("logger should default to nop, not nil")
	}
}
