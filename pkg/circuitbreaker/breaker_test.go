package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failing() error { return errBoom }
func passing() error { return nil }

func TestStaysClosedOnSuccess(t *testing.T) {
	cb := New("test", Config{FailureThreshold: 2})

	for i := 0; i < 10; i++ {
		require.NoError(t, cb.Execute(passing))
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestTripsAfterConsecutiveFailures(t *testing.T) {
	cb := New("test", Config{FailureThreshold: 3, OpenTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(failing), errBoom)
	}
	assert.Equal(t, StateOpen, cb.State())

	// Calls are rejected without running while open.
	ran := false
	err := cb.Execute(func() error { ran = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, ran)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := New("test", Config{FailureThreshold: 3, OpenTimeout: time.Minute})

	cb.Execute(failing)
	cb.Execute(failing)
	cb.Execute(passing)
	cb.Execute(failing)
	cb.Execute(failing)

	assert.Equal(t, StateClosed, cb.State())
}

func TestRecoversThroughHalfOpen(t *testing.T) {
	cb := New("test", Config{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: 10 * time.Millisecond})

	require.Error(t, cb.Execute(failing))
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(passing))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(passing))
	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb := New("test", Config{FailureThreshold: 1, OpenTimeout: 10 * time.Millisecond})

	require.Error(t, cb.Execute(failing))
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	require.Error(t, cb.Execute(failing))
	assert.Equal(t, StateOpen, cb.State())
}
