package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/aero-ingest/internal/testutil"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

func TestTracker_UpdateFromHeaders(t *testing.T) {
	tracker := NewTracker(NewMemoryStore(), clockwork.NewFakeClock(), zerolog.Nop())
	ctx := context.Background()

	headers := http.Header{}
	headers.Set(HeaderRemaining, "25")
	if err := tracker.UpdateFromHeaders(ctx, "opensky", headers); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	state, err := tracker.GetState(ctx, "opensky")
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Remaining != 25 {
		t.Errorf("Remaining = %d, want 25", state.Remaining)
	}
	if !state.IsLow() {
		t.Error("Expected state to be low")
	}

	// Other providers are independent.
	other, err := tracker.GetState(ctx, "open-meteo")
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if other.Remaining != RemainingUnknown {
		t.Errorf("Other provider Remaining = %d, want unknown", other.Remaining)
	}
}

func TestTracker_UpdateFromHeaders_NoHeader(t *testing.T) {
	tracker := NewTracker(nil, clockwork.NewFakeClock(), zerolog.Nop())
	ctx := context.Background()

	if err := tracker.UpdateFromHeaders(ctx, "opensky", http.Header{}); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}
	state, _ := tracker.GetState(ctx, "opensky")
	if state.Remaining != RemainingUnknown {
		t.Errorf("Remaining = %d, want unknown", state.Remaining)
	}
}

func TestTracker_UpdateFromHeaders_Invalid(t *testing.T) {
	tracker := NewTracker(nil, clockwork.NewFakeClock(), zerolog.Nop())

	headers := http.Header{}
	headers.Set(HeaderRemaining, "NaN")
	if err := tracker.UpdateFromHeaders(context.Background(), "opensky", headers); err == nil {
		t.Error("Expected parse error")
	}
}

func TestTracker_ThrottleWaitsForRetryAfter(t *testing.T) {
	fc, stop := testutil.NewDrivenClock(time.Second)
	defer stop()

	tracker := NewTracker(NewMemoryStore(), fc, zerolog.Nop())
	ctx := context.Background()

	start := fc.Now()
	if err := tracker.Throttle(ctx, "opensky", 5*time.Second); err != nil {
		t.Fatalf("Throttle() error = %v", err)
	}

	if elapsed := fc.Since(start); elapsed < 5*time.Second {
		t.Errorf("Throttle returned after %v, want at least 5s", elapsed)
	}

	// Deadline passed, the next request goes straight through.
	waited, err := tracker.Wait(ctx, "opensky")
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if waited != 0 {
		t.Errorf("Wait() = %v, want 0 after deadline", waited)
	}
}

func TestTracker_ThrottleKeepsLaterDeadline(t *testing.T) {
	fc := clockwork.NewFakeClock()
	store := NewMemoryStore()
	ctx := context.Background()

	later := fc.Now().Add(time.Minute)
	if err := store.Set(ctx, "opensky", &State{Remaining: 0, BlockedUntil: later}); err != nil {
		t.Fatal(err)
	}

	tracker := NewTracker(store, fc, zerolog.Nop())
	ctx, cancel := context.WithCancel(ctx)
	cancel()

	// Cancelled ctx returns from the wait; the stored deadline must survive.
	err := tracker.Throttle(ctx, "opensky", 5*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Throttle() error = %v, want context.Canceled", err)
	}

	state, _ := store.Get(context.Background(), "opensky")
	if !state.BlockedUntil.Equal(later) {
		t.Errorf("BlockedUntil = %v, want %v", state.BlockedUntil, later)
	}
}

func TestTracker_WaitSharedThroughStore(t *testing.T) {
	fc, stop := testutil.NewDrivenClock(time.Second)
	defer stop()

	store := NewMemoryStore()
	ctx := context.Background()

	// A second process recorded a 429 ten seconds from now.
	if err := store.Set(ctx, "opensky", &State{Remaining: 0, BlockedUntil: fc.Now().Add(10 * time.Second)}); err != nil {
		t.Fatal(err)
	}

	tracker := NewTracker(store, fc, zerolog.Nop())
	waited, err := tracker.Wait(ctx, "opensky")
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if waited != 10*time.Second {
		t.Errorf("Wait() = %v, want 10s", waited)
	}
}
