// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	// Use a tiny base delay so tests finish quickly.
	BaseDelay = 1 * time.Millisecond
}

func TestDo_ImmediateSuccess(t *testing.T) {
	calls := 0
	err := Policy{MaxAttempts: 5}.Do(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	err := Policy{MaxAttempts: 5}.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsBudget(t *testing.T) {
	sentinel := errors.New("still down")
	calls := 0
	err := Policy{MaxAttempts: 3}.Do(context.Background(), func() error {
		calls++
		return sentinel
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
}

func TestDo_NonRetriableReturnsImmediately(t *testing.T) {
	fatal := errors.New("bad input")
	calls := 0
	p := Policy{
		MaxAttempts: 5,
		Retriable:   func(err error) bool { return !errors.Is(err, fatal) },
	}
	err := p.Do(context.Background(), func() error {
		calls++
		return fatal
	})
	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
	// Non-retriable errors come back unwrapped.
	assert.Equal(t, fatal, err)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	old := BaseDelay
	BaseDelay = 500 * time.Millisecond
	defer func() { BaseDelay = old }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := Policy{MaxAttempts: 5}.Do(ctx, func() error {
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo_DefaultMaxAttempts(t *testing.T) {
	calls := 0
	err := Policy{}.Do(context.Background(), func() error {
		calls++
		return errors.New("transient")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}
