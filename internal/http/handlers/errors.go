package handlers

import (
	"errors"
	"net/http"

	"github.com/tbourn/go-translingo-backend/internal/engine"
	"github.com/tbourn/go-translingo-backend/internal/services"
)

// Error codes clients branch on. Messages are for humans and may change.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"

	ErrCodeUnknownLanguage = "unknown_language"
	ErrCodeInvalidSlot     = "invalid_slot"
	ErrCodeUnsupportedPair = "unsupported_pair"
	ErrCodeSessionClosed   = "session_closed"
	ErrCodeCreateFailed    = "create_failed"
	ErrCodeListFailed      = "list_failed"
	ErrCodeUpdateFailed    = "update_failed"
)

// errorMap is checked in order with errors.Is.
var errorMap = []struct {
	target error
	status int
	code   string
}{
	{services.ErrSessionNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrHistoryNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrSessionClosed, http.StatusGone, ErrCodeSessionClosed},
	{services.ErrUnknownLanguage, http.StatusBadRequest, ErrCodeUnknownLanguage},
	{services.ErrInvalidSlot, http.StatusBadRequest, ErrCodeInvalidSlot},
	{engine.ErrUnsupportedPair, http.StatusUnprocessableEntity, ErrCodeUnsupportedPair},
}

// classify returns the status and code for err, or 500 with fallback.
func classify(err error, fallback string) (int, string) {
	for _, m := range errorMap {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, fallback
}
