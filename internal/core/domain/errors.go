package domain

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrItemNotFound        = errors.New("item not found")
	ErrItemExists          = errors.New("item already exists")
	ErrEventNotFound       = errors.New("event not found")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrTransactionConflict = errors.New("transaction conflict")
	ErrInvalidEvent        = errors.New("invalid event")
	ErrSubmissionInFlight  = errors.New("submission already in progress")
	ErrEventHasInventory   = errors.New("event still has assigned inventory")
)

// ValidationError collects per-field messages for an event form.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid event: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidEvent
}
