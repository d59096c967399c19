package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorType_Constants(t *testing.T) {
	tests := []struct {
		name     string
		errType  ErrorType
		expected string
	}{
		{name: "data insufficiency", errType: ErrTypeDataInsufficiency, expected: "DATA_INSUFFICIENCY"},
		{name: "ill conditioned", errType: ErrTypeIllConditioned, expected: "ILL_CONDITIONED"},
		{name: "out of bounds", errType: ErrTypeOutOfBounds, expected: "OUT_OF_BOUNDS_CONFIGURATION"},
		{name: "validation", errType: ErrTypeValidation, expected: "VALIDATION"},
		{name: "config", errType: ErrTypeConfig, expected: "CONFIG"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.errType))
		})
	}
}

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name        string
		appError    *AppError
		wantMessage string
	}{
		{
			name:        "error without cause",
			appError:    NewDataInsufficiencyError("no observations"),
			wantMessage: "[DATA_INSUFFICIENCY] no observations",
		},
		{
			name:        "error with cause",
			appError:    NewIllConditionedError(3, fmt.Errorf("matrix not positive definite")),
			wantMessage: "[ILL_CONDITIONED] ill-conditioned calibration at iteration 3: matrix not positive definite",
		},
		{
			name:        "out of bounds names the field",
			appError:    NewOutOfBoundsError("priors.eta.std_dev", "must be positive"),
			wantMessage: "[OUT_OF_BOUNDS_CONFIGURATION] priors.eta.std_dev: must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMessage, tt.appError.Error())
		})
	}
}

func TestAppError_ContextAndUnwrap(t *testing.T) {
	cause := errors.New("singular")
	err := NewIllConditionedError(7, cause)

	assert.Equal(t, 7, err.Context["iteration"])
	assert.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("calibrate: %w", err)
	assert.True(t, IsType(wrapped, ErrTypeIllConditioned))
	assert.False(t, IsType(wrapped, ErrTypeDataInsufficiency))
	assert.Equal(t, ErrTypeIllConditioned, TypeOf(wrapped))
	assert.Equal(t, ErrorType(""), TypeOf(errors.New("plain")))

	var appErr *AppError
	require.True(t, errors.As(wrapped, &appErr))
	assert.Equal(t, "ill-conditioned calibration at iteration 7", appErr.Message)
}

func TestFromAppError(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantStatus int
	}{
		{name: "out of bounds is a bad request", err: NewOutOfBoundsError("tolerance", "must be positive"), wantStatus: 400},
		{name: "insufficient data is unprocessable", err: NewDataInsufficiencyError("empty"), wantStatus: 422},
		{name: "ill conditioned is unprocessable", err: NewIllConditionedError(0, nil), wantStatus: 422},
		{name: "storage is internal", err: NewStorageError("write failed", nil), wantStatus: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := FromAppError(tt.err)
			assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
			assert.Equal(t, string(tt.err.Type), apiErr.ErrorCode)
		})
	}
}
