package recovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// instantTimer satisfies backoff.Timer and fires immediately while recording
// every requested delay.
type instantTimer struct {
	mu     sync.Mutex
	delays []time.Duration
	c      chan time.Time
}

func newInstantTimer() *instantTimer {
	return &instantTimer{c: make(chan time.Time, 1)}
}

func (t *instantTimer) Start(d time.Duration) {
	t.mu.Lock()
	t.delays = append(t.delays, d)
	t.mu.Unlock()
	t.c <- time.Now()
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time { return t.c }

func (t *instantTimer) Delays() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.delays...)
}

func fastConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:    maxRetries,
		InitialDelay:  time.Millisecond,
		MaxDelay:      10 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestCalculateDelay_NoJitter(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{50, 30 * time.Second},
	}
	for _, tt := range tests {
		got := CalculateDelay(tt.attempt, time.Second, 2.0, 30*time.Second, false)
		assert.Equal(t, tt.want, got, "attempt %d", tt.attempt)
	}
}

func TestCalculateDelay_JitterBounds(t *testing.T) {
	for i := 0; i < 200; i++ {
		got := CalculateDelay(2, time.Second, 2.0, 30*time.Second, true)
		assert.GreaterOrEqual(t, got, 4000*time.Millisecond)
		assert.LessOrEqual(t, got, 4400*time.Millisecond)
	}
}

func TestCalculateDelay_JitterAtCap(t *testing.T) {
	got := calculateDelay(10, time.Second, 2.0, 30*time.Second, true, func() float64 { return 0.5 })
	assert.Equal(t, 31500*time.Millisecond, got)
}

func TestCalculateDelay_Monotonic(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 0; attempt < 12; attempt++ {
		d := CalculateDelay(attempt, 250*time.Millisecond, 1.5, 20*time.Second, false)
		assert.GreaterOrEqual(t, d, prev)
		prev = d
	}
}

func TestRetryConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultRetryConfig().Validate())

	bad := []RetryConfig{
		{MaxRetries: -1, InitialDelay: time.Second, MaxDelay: time.Second, BackoffFactor: 2},
		{MaxRetries: 1, InitialDelay: 0, MaxDelay: time.Second, BackoffFactor: 2},
		{MaxRetries: 1, InitialDelay: time.Second, MaxDelay: 0, BackoffFactor: 2},
		{MaxRetries: 1, InitialDelay: time.Second, MaxDelay: time.Second, BackoffFactor: 1.0},
	}
	for _, cfg := range bad {
		err := cfg.Validate()
		require.Error(t, err)
		se, ok := AsStructured(err)
		require.True(t, ok)
		assert.Equal(t, CategoryConfig, se.Category)
		assert.False(t, se.Recoverable)
	}
}

func TestWithRetry_SucceedsFirstTry(t *testing.T) {
	calls := 0
	v, err := WithRetry(context.Background(), func() (string, error) {
		calls++
		return "ok", nil
	}, fastConfig(3))

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_SucceedsAfterFailures(t *testing.T) {
	timer := newInstantTimer()
	calls := 0
	v, err := WithRetry(context.Background(), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("rate limit exceeded")
		}
		return 42, nil
	}, fastConfig(5), WithTimer(timer))

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
	assert.Len(t, timer.Delays(), 2)
}

func TestWithRetry_ExhaustionReportsAttempts(t *testing.T) {
	for _, n := range []int{0, 1, 3} {
		timer := newInstantTimer()
		calls := 0
		_, err := WithRetry(context.Background(), func() (struct{}, error) {
			calls++
			return struct{}{}, Tagged{Category: CategoryLLM, Reason: ReasonTimeout}
		}, fastConfig(n), WithTimer(timer))

		require.Error(t, err)
		assert.Equal(t, n+1, calls, "max_retries=%d", n)

		se, ok := AsStructured(err)
		require.True(t, ok)
		assert.Equal(t, ReasonMaxRetries, se.Reason)
		assert.Equal(t, CategoryLLM, se.Category)
		assert.Equal(t, n+1, se.Attempts())
		assert.Equal(t, string(ReasonTimeout), se.Context["last_reason"])

		var tagged Tagged
		assert.True(t, errors.As(err, &tagged))
	}
}

func TestWithRetry_DelaysFollowSchedule(t *testing.T) {
	timer := newInstantTimer()
	cfg := RetryConfig{MaxRetries: 4, InitialDelay: 100 * time.Millisecond, MaxDelay: 500 * time.Millisecond, BackoffFactor: 2.0}

	_, _ = WithRetry(context.Background(), func() (int, error) {
		return 0, errors.New("boom")
	}, cfg, WithTimer(timer))

	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond,
	}, timer.Delays())
}

func TestWithRetry_NotifyCallback(t *testing.T) {
	var seen []int
	_, _ = WithRetry(context.Background(), func() (int, error) {
		return 0, errors.New("boom")
	}, fastConfig(2), WithTimer(newInstantTimer()), WithNotify(func(attempt int, err error, d time.Duration) {
		seen = append(seen, attempt)
	}))

	assert.Equal(t, []int{1, 2}, seen)
}

func TestWithRetry_InvalidConfig(t *testing.T) {
	calls := 0
	_, err := WithRetry(context.Background(), func() (int, error) {
		calls++
		return 0, nil
	}, RetryConfig{MaxRetries: 1})

	require.Error(t, err)
	assert.Equal(t, 0, calls)
	assert.Equal(t, CategoryConfig, CategorizeError(err))
}

func TestWithRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := WithRetry(ctx, func() (int, error) {
		calls++
		cancel()
		return 0, errors.New("boom")
	}, fastConfig(10), WithTimer(newInstantTimer()))

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	se, ok := AsStructured(err)
	require.True(t, ok)
	assert.Contains(t, se.Context, "canceled")
}
