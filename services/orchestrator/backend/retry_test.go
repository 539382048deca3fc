package backend

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetrier() Retrier {
	return Retrier{MaxRetries: 2, Delay: time.Millisecond}
}

func TestRetrierStopsAtMaximum(t *testing.T) {
	calls := 0
	var notices []string
	n, err := fastRetrier().Do(context.Background(), func(context.Context) error {
		calls++
		return fmt.Errorf("call: %w", ErrTransient)
	}, func(attempt, limit int) {
		notices = append(notices, fmt.Sprintf("%d/%d", attempt, limit))
	})

	require.Error(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []string{"1/2", "2/2"}, notices)
}

func TestRetrierSucceedsAfterTransient(t *testing.T) {
	calls := 0
	n, err := fastRetrier().Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return ErrTransient
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRetrierDoesNotRetryPermanent(t *testing.T) {
	permanent := errors.New("bad request")
	n, err := fastRetrier().Do(context.Background(), func(context.Context) error {
		return permanent
	}, func(int, int) { t.Fatal("unexpected retry") })

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, n)
}

func TestRetrierZeroRetries(t *testing.T) {
	n, err := Retrier{}.Do(context.Background(), func(context.Context) error {
		return ErrTransient
	}, nil)
	assert.Error(t, err)
	assert.Equal(t, 1, n)
}

func TestRetrierHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := Retrier{MaxRetries: 2, Delay: time.Hour}

	n, err := r.Do(ctx, func(context.Context) error {
		return ErrTransient
	}, func(int, int) { cancel() })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, n)
}
