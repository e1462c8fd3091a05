package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastCfg(attempts int) RetryConfig {
	return RetryConfig{Attempts: attempts, Delay: time.Millisecond}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastCfg(3), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastCfg(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientFetchError(eris.New("boom"), 503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsBudget(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastCfg(3), func(ctx context.Context) error {
		calls++
		return NewTransientFetchError(eris.New("still down"), 502)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_NonTransientNotRetried(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastCfg(3), func(ctx context.Context) error {
		calls++
		return eris.New("permanent")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, RetryConfig{Attempts: 5, Delay: time.Minute}, func(ctx context.Context) error {
		calls++
		cancel()
		return NewTransientFetchError(eris.New("boom"), 500)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ReturnsValue(t *testing.T) {
	calls := 0
	v, err := DoVal(context.Background(), fastCfg(3), func(ctx context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, NewTransientFetchError(eris.New("flaky"), 500)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 2, calls)
}

func TestDoVal_OnRetryCalled(t *testing.T) {
	var attempts []int
	cfg := fastCfg(3)
	cfg.OnRetry = func(attempt int, err error) { attempts = append(attempts, attempt) }

	_, err := DoVal(context.Background(), cfg, func(ctx context.Context) (string, error) {
		return "", NewTransientFetchError(eris.New("boom"), 500)
	})
	require.Error(t, err)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(eris.New("parse failure")))
	assert.True(t, IsTransient(NewTransientFetchError(eris.New("x"), 503)))
	assert.True(t, IsTransient(eris.Wrap(NewTransientFetchError(eris.New("x"), 0), "fetch listing")))
	assert.True(t, IsTransient(eris.New("read tcp: connection reset by peer")))
	assert.True(t, IsTransient(eris.New("dial tcp: i/o timeout")))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "code %d", code)
	}
	for _, code := range []int{200, 301, 400, 403, 404} {
		assert.False(t, IsTransientHTTPStatus(code), "code %d", code)
	}
}
