package retrier

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsAfterRetries(t *testing.T) {
	r := New(WithInitialInterval(time.Millisecond), WithMaxRetries(3))

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	r := New(WithInitialInterval(time.Millisecond), WithMaxRetries(2))

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("always fails")
	})

	assert.Error(t, err)
	assert.Equal(t, 3, calls, "initial attempt plus two retries")
}

func TestDo_StopsOnTerminalError(t *testing.T) {
	terminal := errors.New("terminal")
	r := New(
		WithInitialInterval(time.Millisecond),
		WithMaxRetries(5),
		WithRetryIf(func(err error) bool { return !errors.Is(err, terminal) }),
	)

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return terminal
	})

	assert.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, calls, "terminal errors must not be retried")
}

func TestDo_RespectsContextCancellation(t *testing.T) {
	r := New(WithInitialInterval(time.Hour), WithMaxRetries(1))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := r.Do(ctx, func(ctx context.Context) error {
		return errors.New("fail once, then wait")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithData(t *testing.T) {
	r := New(WithInitialInterval(time.Millisecond), WithMaxRetries(2))

	calls := 0
	v, err := DoWithData(r, context.Background(), func(ctx context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
}
