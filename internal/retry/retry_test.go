package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDoValueSucceedsOnKthAttempt(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := DoValue(context.Background(), Options{Attempts: 5, Delay: time.Millisecond}, func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient error")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", got)
	require.Equal(t, 3, calls, "fails twice, succeeds on 3rd attempt")
}

func TestDoValueExhaustsAndWrapsLastFailure(t *testing.T) {
	t.Parallel()

	final := errors.New("still broken")
	calls := 0
	_, err := DoValue(context.Background(), Options{Attempts: 3, Delay: time.Millisecond}, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("earlier failure")
		}
		return 0, final
	})
	require.Error(t, err)
	require.Equal(t, 3, calls, "exactly Attempts invocations")

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 3, exhausted.Attempts)
	require.ErrorIs(t, err, final, "last failure must stay reachable")
}

func TestDoFirstTrySuccessSkipsDelay(t *testing.T) {
	t.Parallel()

	start := time.Now()
	err := Do(context.Background(), Options{Attempts: 3, Delay: time.Second}, func() error {
		return nil
	})
	require.NoError(t, err)
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDoStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Options{Attempts: 10, Delay: 50 * time.Millisecond}, func() error {
		calls++
		cancel()
		return errors.New("transient error")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls, "cancellation must stop the loop during the delay")

	var exhausted *ExhaustedError
	require.False(t, errors.As(err, &exhausted), "cancellation is not exhaustion")
}

func TestDoValueZeroAttemptsRunsOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := DoValue(context.Background(), Options{}, func() (int, error) {
		calls++
		return 0, errors.New("boom")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}
