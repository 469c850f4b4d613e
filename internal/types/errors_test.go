package types

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrCodeValidationInvalidSource, http.StatusBadRequest},
		{ErrCodeValidationAlreadyTriggered, http.StatusBadRequest},
		{ErrCodeAuthTokenMissing, http.StatusUnauthorized},
		{ErrCodeNotFoundTrigger, http.StatusNotFound},
		{ErrCodeConflictRepeatKey, http.StatusConflict},
		{ErrCodeUpstreamFeed, http.StatusBadGateway},
		{ErrCodeUpstreamQueue, http.StatusBadGateway},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrorCode("something_unknown"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(string(tc.code), func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.code.HTTPStatus())
		})
	}
}

func TestErrorCode_IsTransient(t *testing.T) {
	assert.True(t, ErrCodeUpstreamFeed.IsTransient())
	assert.True(t, ErrCodeUpstreamQueue.IsTransient())
	assert.True(t, ErrCodeUpstreamWebhook.IsTransient())

	assert.False(t, ErrCodeValidationInvalidSource.IsTransient())
	assert.False(t, ErrCodeNotFoundTrigger.IsTransient())
	assert.False(t, ErrCodeInternalDB.IsTransient())
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	appErr := NewAppError(ErrCodeUpstreamFeed, "feed unreachable", cause)

	assert.Equal(t, "upstream_feed_unavailable: feed unreachable", appErr.Error())
	assert.ErrorIs(t, appErr, cause)

	var target *AppError
	require.ErrorAs(t, error(appErr), &target)
	assert.Equal(t, ErrCodeUpstreamFeed, target.Code)
}
