package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(CodeEmptyDocument, "document text is empty")
	require.NotNil(t, err)
	assert.Equal(t, CodeEmptyDocument, err.Code)
	assert.Equal(t, "[RX_001] document text is empty", err.Error())
	assert.NotEmpty(t, err.Stack)
}

func TestErrorWithDetail(t *testing.T) {
	err := New(CodeInvalidDosePattern, "unrecognised dose notation").WithDetail("fragment=every 6 hours")
	assert.Equal(t, "[RX_002] unrecognised dose notation: fragment=every 6 hours", err.Error())

	var nilErr *AppError
	assert.Nil(t, nilErr.WithDetail("ignored"))
}

func TestWrap(t *testing.T) {
	t.Run("nil cause returns nil", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, CodeDatabaseError, "query failed"))
	})

	t.Run("wraps and unwraps", func(t *testing.T) {
		cause := fmt.Errorf("connection refused")
		err := Wrap(cause, CodeDatabaseError, "failed to save reminders")
		require.NotNil(t, err)
		assert.Equal(t, CodeDatabaseError, err.Code)
		assert.True(t, errors.Is(err, cause))
	})

	t.Run("CodeUnknown preserves original code", func(t *testing.T) {
		inner := New(CodeReminderNotFound, "reminder not found")
		err := Wrap(inner, CodeUnknown, "lookup failed")
		assert.Equal(t, CodeReminderNotFound, err.Code)
	})
}

func TestIsCode(t *testing.T) {
	inner := New(CodeInvalidDuration, "duration must be at least one day")
	wrapped := Wrap(inner, CodeInternal, "expansion failed")

	assert.True(t, IsCode(wrapped, CodeInvalidDuration))
	assert.True(t, IsCode(wrapped, CodeInternal))
	assert.False(t, IsCode(wrapped, CodeNotFound))
	assert.False(t, IsCode(nil, CodeInternal))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(New(CodePrescriptionNotFound, "prescription not found")))
	assert.True(t, IsNotFound(NotFound("no such schedule")))
	assert.False(t, IsNotFound(New(CodeInternal, "boom")))
	assert.False(t, IsNotFound(errors.New("plain error")))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, CodeOK, GetCode(nil))
	assert.Equal(t, CodeUnknown, GetCode(errors.New("plain")))
	assert.Equal(t, CodeCacheError, GetCode(New(CodeCacheError, "cache write failed")))

	wrapped := fmt.Errorf("outer: %w", New(CodeDispatchFailed, "publish failed"))
	assert.Equal(t, CodeDispatchFailed, GetCode(wrapped))
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		code ErrorCode
		want int
	}{
		{CodeInvalidParam, 400},
		{CodeInvalidDosePattern, 400},
		{CodeValidation, 422},
		{CodePrescriptionNotFound, 404},
		{CodeConflict, 409},
		{CodeServiceUnavailable, 503},
		{CodeInternal, 500},
		{ErrorCode("UNMAPPED"), 500},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.code), "code %s", tc.code)
	}
}
