package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	e := &Error{Code: ErrRateLimited, Message: "too many requests", Provider: "openai"}
	assert.Equal(t, "RATE_LIMITED: too many requests (openai)", e.Error())

	e2 := &Error{Code: ErrInternal, Message: "boom"}
	assert.Equal(t, "INTERNAL: boom", e2.Error())
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	e := WrapError(ErrUpstreamError, "request failed", cause)
	assert.True(t, errors.Is(e, cause))

	wrapped := fmt.Errorf("outer: %w", e)
	var target *Error
	require.True(t, errors.As(wrapped, &target))
	assert.Equal(t, ErrUpstreamError, target.Code)
}

func TestIsRetryable(t *testing.T) {
	retryable := &Error{Code: ErrUpstreamError, Message: "502", Retryable: true}
	assert.True(t, IsRetryable(retryable))
	assert.False(t, IsRetryable(&Error{Code: ErrInvalidRequest}))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrToolNotFound, CodeOf(NewError(ErrToolNotFound, "missing")))
	assert.Equal(t, ErrInternal, CodeOf(errors.New("plain")))
}
