package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	err := NewError(ErrRetrievalUnavailable, "index down", nil)
	assert.Equal(t, "RETRIEVAL_UNAVAILABLE: index down", err.Error())

	wrapped := NewError(ErrGenerationFailed, "provider call", errors.New("boom"))
	assert.Contains(t, wrapped.Error(), "GENERATION_FAILED")
	assert.Contains(t, wrapped.Error(), "boom")
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(ErrRetrievalUnavailable, "embed", cause)

	assert.ErrorIs(t, err, cause)
}

func TestError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewError(ErrRetrievalUnavailable, "embed", nil))

	assert.True(t, errors.Is(err, &Error{Code: ErrRetrievalUnavailable}))
	assert.False(t, errors.Is(err, &Error{Code: ErrGenerationFailed}))
}

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NewError(ErrConfigInvalid, "bad yaml", nil))

	assert.True(t, IsCode(err, ErrConfigInvalid))
	assert.False(t, IsCode(err, ErrRetrievalUnavailable))
	assert.False(t, IsCode(errors.New("plain"), ErrConfigInvalid))
}
