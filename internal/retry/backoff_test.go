package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/intentflow/config"
	"github.com/BaSui01/intentflow/types"
)

func fastPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries:   maxRetries,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
	}
}

var errTemporary = WrapRetryable(errors.New("temporary"))

func TestRetryer_SuccessFirstTry(t *testing.T) {
	r := New(fastPolicy(3), zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryer_RetryThenSuccess(t *testing.T) {
	r := New(fastPolicy(3), zap.NewNop())

	calls := 0
	v, err := Do(context.Background(), r, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errTemporary
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestRetryer_Exhausted(t *testing.T) {
	r := New(fastPolicy(2), nil)

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return errTemporary
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Contains(t, err.Error(), "failed after 3 attempts: temporary")
}

func TestRetryer_NonRetryableReturnsImmediately(t *testing.T) {
	r := New(fastPolicy(5), nil)

	permanent := errors.New("bad request")
	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return permanent
	})

	assert.Same(t, permanent, err)
	assert.Equal(t, 1, calls)
}

func TestRetryer_TypesErrorRetryable(t *testing.T) {
	r := New(fastPolicy(1), nil)

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return types.NewError(types.ErrUpstreamError, "503").WithRetryable(true)
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, types.IsErrorCode(err, types.ErrUpstreamError))
}

func TestRetryer_CustomShouldRetry(t *testing.T) {
	p := fastPolicy(2)
	p.ShouldRetry = func(error) bool { return true }
	r := New(p, nil)

	calls := 0
	_ = r.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("plain")
	})
	assert.Equal(t, 3, calls)
}

func TestRetryer_ContextCanceled(t *testing.T) {
	p := fastPolicy(5)
	p.InitialDelay = time.Second
	p.MaxDelay = time.Second
	r := New(p, nil)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := r.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errTemporary
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryer_OnRetryCallback(t *testing.T) {
	p := fastPolicy(2)
	var attempts []int
	var delays []time.Duration
	p.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
		delays = append(delays, delay)
		assert.ErrorIs(t, err, errTemporary)
	}
	r := New(p, nil)

	_ = r.Do(context.Background(), func(context.Context) error { return errTemporary })

	assert.Equal(t, []int{1, 2}, attempts)
	assert.Equal(t, []time.Duration{5 * time.Millisecond, 10 * time.Millisecond}, delays)
}

func TestRetryer_DelayCapAndJitter(t *testing.T) {
	r := New(Policy{MaxRetries: 10, InitialDelay: 10 * time.Millisecond, MaxDelay: 40 * time.Millisecond, Multiplier: 2}, nil)
	assert.Equal(t, 10*time.Millisecond, r.delay(1))
	assert.Equal(t, 20*time.Millisecond, r.delay(2))
	assert.Equal(t, 40*time.Millisecond, r.delay(3))
	assert.Equal(t, 40*time.Millisecond, r.delay(8))

	j := New(Policy{MaxRetries: 3, InitialDelay: 10 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, Jitter: true}, nil)
	for i := 0; i < 50; i++ {
		d := j.delay(3)
		assert.GreaterOrEqual(t, d, 30*time.Millisecond)
		assert.LessOrEqual(t, d, 50*time.Millisecond)
	}
}

func TestNew_NormalizesPolicy(t *testing.T) {
	r := New(Policy{MaxRetries: -1, Multiplier: 0.5}, nil)
	p := r.Policy()
	assert.Equal(t, 0, p.MaxRetries)
	assert.Equal(t, DefaultPolicy().InitialDelay, p.InitialDelay)
	assert.Equal(t, p.InitialDelay, p.MaxDelay)
	assert.Equal(t, 2.0, p.Multiplier)
	assert.NotNil(t, p.ShouldRetry)
}

func TestFromDownstreamConfig(t *testing.T) {
	cfg := config.DefaultDownstreamConfig()
	cfg.MaxRetries = 4
	cfg.InitialBackoff = 50 * time.Millisecond
	cfg.MaxBackoff = 0

	p := FromDownstreamConfig(cfg)
	assert.Equal(t, 4, p.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, p.InitialDelay)
	assert.Equal(t, DefaultPolicy().MaxDelay, p.MaxDelay)
}

func TestWrapRetryable(t *testing.T) {
	assert.Nil(t, WrapRetryable(nil))

	base := errors.New("boom")
	wrapped := WrapRetryable(base)
	assert.True(t, IsRetryable(wrapped))
	assert.ErrorIs(t, wrapped, base)
	assert.False(t, IsRetryable(base))
}
