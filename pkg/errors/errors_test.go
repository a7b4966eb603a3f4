package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneMatchesSentinel(t *testing.T) {
	err := Clone(ErrDeviceMismatch, "device does not match")

	assert.True(t, stdErrors.Is(err, ErrDeviceMismatch))
	assert.False(t, stdErrors.Is(err, ErrAccountDeactivated))
	assert.Equal(t, "device does not match", err.Message)
	assert.Equal(t, http.StatusForbidden, err.Status)
}

func TestWrappedErrorMatchesThroughChain(t *testing.T) {
	err := fmt.Errorf("check-in: %w", Clone(ErrAlreadyCheckedIn, ""))

	assert.True(t, stdErrors.Is(err, ErrAlreadyCheckedIn))
	assert.Equal(t, ErrAlreadyCheckedIn.Message, FromError(err).Message)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(stdErrors.New("boom"))

	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.Nil(t, FromError(nil))
}

func TestErrorString(t *testing.T) {
	err := Wrap(stdErrors.New("disk full"), ErrInternal.Code, ErrInternal.Status, "failed to record attendance")
	assert.Equal(t, "failed to record attendance: disk full", err.Error())
	assert.Equal(t, "session has ended", ErrSessionClosed.Error())
}
