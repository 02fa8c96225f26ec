package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/aero-ingest/internal/testutil"
	"github.com/jonboulle/clockwork"
)

func TestPolicies(t *testing.T) {
	tests := []struct {
		name             string
		policy           Policy
		expectedAttempts int
		expectedInitial  time.Duration
		expectedMax      time.Duration
	}{
		{
			name:             "token exchange",
			policy:           TokenExchangePolicy(),
			expectedAttempts: 3,
			expectedInitial:  2 * time.Second,
			expectedMax:      10 * time.Second,
		},
		{
			name:             "flights",
			policy:           FlightsPolicy(),
			expectedAttempts: 5,
			expectedInitial:  2 * time.Second,
			expectedMax:      30 * time.Second,
		},
		{
			name:             "weather",
			policy:           WeatherPolicy(),
			expectedAttempts: 3,
			expectedInitial:  2 * time.Second,
			expectedMax:      10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.policy.MaxAttempts != tt.expectedAttempts {
				t.Errorf("MaxAttempts = %d, want %d", tt.policy.MaxAttempts, tt.expectedAttempts)
			}
			if tt.policy.InitialBackoff != tt.expectedInitial {
				t.Errorf("InitialBackoff = %v, want %v", tt.policy.InitialBackoff, tt.expectedInitial)
			}
			if tt.policy.MaxBackoff != tt.expectedMax {
				t.Errorf("MaxBackoff = %v, want %v", tt.policy.MaxBackoff, tt.expectedMax)
			}
			if err := tt.policy.Validate(); err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestPolicy_Backoff(t *testing.T) {
	p := FlightsPolicy()

	expected := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, want := range expected {
		if got := p.Backoff(i + 1); got != want {
			t.Errorf("Backoff(%d) = %v, want %v", i+1, got, want)
		}
	}
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{name: "zero attempts", policy: Policy{MaxAttempts: 0, Multiplier: 2}, wantErr: true},
		{name: "negative backoff", policy: Policy{MaxAttempts: 1, InitialBackoff: -1, Multiplier: 2}, wantErr: true},
		{name: "shrinking multiplier", policy: Policy{MaxAttempts: 1, Multiplier: 0.5}, wantErr: true},
		{name: "single attempt", policy: Policy{MaxAttempts: 1, Multiplier: 1}, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDo_Success(t *testing.T) {
	fc, stop := testutil.NewDrivenClock(time.Second)
	defer stop()

	calls := 0
	err := Do(context.Background(), fc, FlightsPolicy(), func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	fc, stop := testutil.NewDrivenClock(time.Second)
	defer stop()

	start := fc.Now()
	calls := 0
	err := Do(context.Background(), fc, FlightsPolicy(), func(ctx context.Context, attempt int) error {
		calls++
		if attempt != calls {
			t.Errorf("attempt = %d, want %d", attempt, calls)
		}
		if calls < 3 {
			return Retryable(errors.New("temporary error"))
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}

	// 2s after the first failure, 4s after the second.
	if elapsed := fc.Since(start); elapsed < 6*time.Second {
		t.Errorf("Expected at least 6s of backoff, got %v", elapsed)
	}
}

func TestDo_MaxAttemptsExhausted(t *testing.T) {
	fc, stop := testutil.NewDrivenClock(time.Second)
	defer stop()

	persistent := errors.New("persistent error")
	calls := 0
	err := Do(context.Background(), fc, FlightsPolicy(), func(ctx context.Context, attempt int) error {
		calls++
		return Retryable(persistent)
	})

	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if calls != 5 {
		t.Errorf("Expected 5 calls, got %d", calls)
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if !errors.Is(err, persistent) {
		t.Errorf("Expected the last attempt's error to be wrapped, got %v", err)
	}
	if IsRetryable(err) {
		t.Error("Exhausted error must not be retryable again")
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	fc, stop := testutil.NewDrivenClock(time.Second)
	defer stop()

	fatal := errors.New("fatal error")
	calls := 0
	err := Do(context.Background(), fc, FlightsPolicy(), func(ctx context.Context, attempt int) error {
		calls++
		return fatal
	})

	if !errors.Is(err, fatal) {
		t.Errorf("Expected fatal error, got %v", err)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("Non-retryable error must not be reported as exhausted")
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	// Clock is never advanced, so the only way out of the backoff is ctx.
	fc := clockwork.NewFakeClock()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fc, FlightsPolicy(), func(ctx context.Context, attempt int) error {
		calls++
		cancel()
		return Retryable(errors.New("temporary error"))
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestRetryable(t *testing.T) {
	if Retryable(nil) != nil {
		t.Error("Retryable(nil) should be nil")
	}

	base := errors.New("base")
	wrapped := Retryable(base)
	if !IsRetryable(wrapped) {
		t.Error("Expected wrapped error to be retryable")
	}
	if !errors.Is(wrapped, base) {
		t.Error("Expected wrapped error to unwrap to base")
	}
	if wrapped.Error() != "base" {
		t.Errorf("Error() = %q, want %q", wrapped.Error(), "base")
	}
	if IsRetryable(base) {
		t.Error("Expected plain error not to be retryable")
	}
}
