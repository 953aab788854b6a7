package model

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrCategoryNotFound   = errors.New("category not found")
	ErrListingNotFound    = errors.New("listing not found")
	ErrSoldOut            = errors.New("listing is sold out")
	ErrAlreadyUsed        = errors.New("ticket already used")
	ErrTicketCancelled    = errors.New("ticket is cancelled")
	ErrInvalidPass        = errors.New("invalid ticket pass")
	ErrConflict           = errors.New("conflict")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInternal           = errors.New("internal error")
)

// ValidationError carries enough detail for the caller to fix its input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
