package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("send: %w", Unauthenticated("no current user"))
	assert.True(t, errors.Is(err, ErrUnauthenticated))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, CodeUnauthenticated, CodeOf(err))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(err))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(CodeUnavailable, "message not sent", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "message not sent: connection reset", err.Error())
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(err))
}

func TestUnknownErrors(t *testing.T) {
	assert.Equal(t, CodeUnknown, CodeOf(errors.New("boom")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
	assert.Equal(t, Code(""), CodeOf(nil))
}
