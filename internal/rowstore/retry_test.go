package rowstore

import (
	"errors"
	"testing"
	"time"
)

func testPolicy(attempts int) (retryPolicy, *[]time.Duration) {
	var slept []time.Duration
	p := retryPolicy{
		attempts: attempts,
		maxPause: 100 * time.Millisecond,
		sleep:    func(d time.Duration) { slept = append(slept, d) },
		randf:    func() float64 { return 0.5 },
	}
	return p, &slept
}

func TestRetryPolicyBusyThenSuccess(t *testing.T) {
	t.Parallel()

	p, slept := testPolicy(5)
	busy := errors.New("database is locked")

	calls := 0
	err := p.run(
		func(err error) bool { return errors.Is(err, busy) },
		nil,
		func() error {
			calls++
			if calls < 3 {
				return busy
			}
			return nil
		})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(*slept) != 2 {
		t.Errorf("slept %d times, want 2", len(*slept))
	}
	for _, d := range *slept {
		if d != 50*time.Millisecond {
			t.Errorf("pause = %v, want 50ms with randf=0.5", d)
		}
	}
}

func TestRetryPolicyNonBusyReturnsImmediately(t *testing.T) {
	t.Parallel()

	p, slept := testPolicy(5)
	fatal := errors.New("syntax error")

	calls := 0
	err := p.run(
		func(error) bool { return false },
		nil,
		func() error { calls++; return fatal })
	if !errors.Is(err, fatal) {
		t.Fatalf("err = %v, want %v", err, fatal)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if len(*slept) != 0 {
		t.Errorf("slept %d times, want 0", len(*slept))
	}
}

func TestRetryPolicyExhaustion(t *testing.T) {
	t.Parallel()

	p, _ := testPolicy(3)
	busy := errors.New("database is locked")

	retries := 0
	calls := 0
	err := p.run(
		func(error) bool { return true },
		func(int) { retries++ },
		func() error { calls++; return busy })
	if !errors.Is(err, busy) {
		t.Fatalf("err = %v, want busy error after exhaustion", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if retries != 2 {
		t.Errorf("onRetry fired %d times, want 2", retries)
	}
}

func TestEffectiveChunkSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		profile   string
		columns   int
		requested int
		want      int
	}{
		{"embedded_unlimited", "sqlite", 10, 100, 100},
		{"server_param_cap", "sqlserver", 10, 300, 210},
		{"server_under_cap", "sqlserver", 3, 100, 100},
		{"desktop_no_batching", "access", 10, 100, 1},
		{"zero_columns", "sqlite", 0, 100, 1},
		{"floor_of_one", "sqlserver", 3000, 100, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := profileByName(t, tt.profile)
			if got := effectiveChunkSize(p, tt.columns, tt.requested); got != tt.want {
				t.Errorf("effectiveChunkSize(%s, %d cols, %d) = %d, want %d",
					tt.profile, tt.columns, tt.requested, got, tt.want)
			}
		})
	}
}
