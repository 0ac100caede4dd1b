package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryPredicates(t *testing.T) {
	assert.True(t, IsValidation(NewValidationError("wallet", "malformed")))
	assert.True(t, IsNotFound(NewNotFoundError("listing", "listing-1")))
	assert.True(t, IsConflict(NewConflictError("already claimed")))
	assert.True(t, IsChainUnavailable(NewChainUnavailableError("filter logs", errors.New("rpc down"))))

	assert.False(t, IsConflict(NewValidationError("wallet", "malformed")))
	assert.False(t, IsConflict(errors.New("plain")))
	assert.False(t, IsConflict(nil))
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("failed to record claim: %w", NewConflictError("already claimed"))
	assert.True(t, IsConflict(err))
	assert.Equal(t, http.StatusConflict, HTTPStatus(err))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(NewValidationError("week", "bad format")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NewNotFoundError("payout", "p-1")))
	assert.Equal(t, http.StatusConflict, HTTPStatus(NewConflictError("dup")))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(NewChainUnavailableError("call", nil)))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(NewDatabaseError("insert", nil)))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("plain")))
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewChainUnavailableError("receipt lookup", cause)

	assert.Contains(t, err.Error(), "CHAIN_UNAVAILABLE")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, cause, errors.Unwrap(err))
}
