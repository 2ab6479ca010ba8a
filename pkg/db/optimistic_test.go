package db

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryStaleStopsOnSuccess(t *testing.T) {
	calls := 0
	err := RetryStale(func() error {
		calls++
		if calls < 3 {
			return ErrStaleWrite
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStaleGivesUp(t *testing.T) {
	calls := 0
	err := RetryStale(func() error {
		calls++
		return ErrStaleWrite
	})
	assert.ErrorIs(t, err, ErrStaleWrite)
	assert.Equal(t, MaxWriteAttempts, calls)
}

func TestRetryStaleReturnsOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := RetryStale(func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}
