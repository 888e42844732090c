package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	allowed := []struct {
		from, to SourceStatus
	}{
		{StatusPending, StatusAcquiring},
		{StatusPending, StatusProcessing},
		{StatusPending, StatusFailed},
		{StatusAcquiring, StatusProcessing},
		{StatusAcquiring, StatusFailed},
		{StatusProcessing, StatusCompleted},
		{StatusProcessing, StatusFailed},
	}
	for _, tc := range allowed {
		assert.True(t, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}

	denied := []struct {
		from, to SourceStatus
	}{
		{StatusPending, StatusCompleted},
		{StatusAcquiring, StatusAcquiring},
		{StatusProcessing, StatusAcquiring},
		{StatusCompleted, StatusProcessing},
		{StatusCompleted, StatusFailed},
		{StatusFailed, StatusPending},
		{StatusFailed, StatusCompleted},
	}
	for _, tc := range denied {
		assert.False(t, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusAcquiring.Terminal())
	assert.False(t, StatusProcessing.Terminal())
}
