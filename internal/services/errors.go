// Package services defines the business logic for translation sessions,
// language selection, and history.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

// Language selection errors.
var (
	// ErrUnknownLanguage is returned when a code is not in the catalog.
	ErrUnknownLanguage = errors.New("unknown language")

	// ErrInvalidSlot is returned for a slot other than source or target.
	ErrInvalidSlot = errors.New("slot must be source or target")
)

// History errors.
var (
	// ErrHistoryNotFound indicates that no record matches the given id or
	// value.
	ErrHistoryNotFound = errors.New("history record not found")

	// ErrBlankText is returned when saving a record whose original text is
	// empty or whitespace-only.
	ErrBlankText = errors.New("original text is blank")

	// ErrUndetermined is returned when validation is enabled and the
	// translated text's language cannot be identified.
	ErrUndetermined = errors.New("translated text language is undetermined")
)

// Session errors.
var (
	// ErrSessionNotFound indicates that the session id is unknown or the
	// session was already disposed.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionClosed is returned by operations on a disposed orchestrator.
	ErrSessionClosed = errors.New("session closed")
)
