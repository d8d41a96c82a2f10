package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvalidTemplate_CarriesSequenceName(t *testing.T) {
	cause := errors.New("unknown key")
	err := NewInvalidTemplate("Customer Invoices", cause)

	assert.Equal(t, CodeInvalidTemplate, err.Code)
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus)
	assert.Equal(t, "Customer Invoices", err.Details["sequence"])
	assert.Contains(t, err.Message, "Customer Invoices")
	assert.ErrorIs(t, err, cause)
}

func TestHasCode_ThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("allocate: %w", NewInvalidStep())

	assert.True(t, HasCode(wrapped, CodeInvalidStep))
	assert.False(t, IsNotFound(wrapped))

	appErr, ok := AsAppError(wrapped)
	assert.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
}

func TestAsAppError_PlainError(t *testing.T) {
	_, ok := AsAppError(errors.New("boom"))
	assert.False(t, ok)
	assert.False(t, HasCode(errors.New("boom"), CodeInternal))
}

func TestIsForbidden(t *testing.T) {
	err := NewForbidden("denied").WithDetail("entity", "sequence")

	assert.True(t, IsForbidden(err))
	assert.Equal(t, "sequence", err.Details["entity"])
}
