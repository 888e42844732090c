package errdefs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnwrapChain(t *testing.T) {
	root := errors.New("connection refused")
	err := fmt.Errorf("pipeline stage: %w", &AcquisitionError{URL: "https://example.com/a", Err: root})

	var acq *AcquisitionError
	assert.True(t, errors.As(err, &acq))
	assert.ErrorIs(t, err, root)
	assert.Contains(t, acq.Error(), "https://example.com/a")
}

func TestNotReadyListsAllIDs(t *testing.T) {
	err := &NotReadyError{IDs: []string{"a", "b", "c"}}
	assert.Contains(t, err.Error(), "a, b, c")
}

func TestIsNotFound(t *testing.T) {
	err := fmt.Errorf("lookup: %w", &NotFoundError{Resource: "source", ID: "x"})
	assert.True(t, IsNotFound(err))
	assert.False(t, IsNotFound(errors.New("other")))
	assert.Contains(t, err.Error(), "source x not found")
}
