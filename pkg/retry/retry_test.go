package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errPermanent = errors.New("permanent")

func TestDo_SucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesOnTransientError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("smtp 421")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_ReturnsLastErrorAfterMaxAttempts(t *testing.T) {
	calls := 0
	sentinel := errors.New("connection refused")
	err := Do(context.Background(), Config{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		return sentinel
	})
	assert.Equal(t, sentinel, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnNonRetryableError(t *testing.T) {
	calls := 0
	var retried []int
	err := Do(context.Background(), Config{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		Retryable:   func(err error) bool { return !errors.Is(err, errPermanent) },
		OnRetry:     func(attempt int, _ error) { retried = append(retried, attempt) },
	}, func(context.Context) error {
		calls++
		if calls == 2 {
			return errPermanent
		}
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, errPermanent)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []int{1}, retried)
}

func TestDo_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	err := Do(ctx, Config{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond}, func(context.Context) error {
		return errors.New("always fails")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo_OnRetryCalledWithAttempt(t *testing.T) {
	var attempts []int
	_ = Do(context.Background(), Config{
		MaxAttempts: 4,
		BaseDelay:   time.Millisecond,
		OnRetry:     func(attempt int, _ error) { attempts = append(attempts, attempt) },
	}, func(context.Context) error {
		return errors.New("fail")
	})

	// Not called after the final attempt.
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestDo_ZeroMaxAttemptsDefaultsToOne(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{}, func(context.Context) error {
		calls++
		return errors.New("fail")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestConfig_Delay(t *testing.T) {
	c := Config{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, c.delay(1))
	assert.Equal(t, 4*time.Second, c.delay(2))
	assert.Equal(t, 5*time.Second, c.delay(3), "capped")

	c.MaxDelay = 0
	assert.Equal(t, 9*time.Second, c.delay(3))
}
