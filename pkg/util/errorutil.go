package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewCodeMismatch signals a wrong one-time verification code. The pending
// record stays intact.
func NewCodeMismatch() error {
	return NewDomainError("CODE_MISMATCH", "verification code does not match", http.StatusUnprocessableEntity, nil)
}

// NewCooldownActive rejects a reminder inside the cooldown window.
func NewCooldownActive(hoursRemaining int) error {
	return NewDomainError("COOLDOWN_ACTIVE",
		fmt.Sprintf("reminder already sent; try again in %d hour(s)", hoursRemaining),
		http.StatusTooManyRequests,
		map[string]any{"hours_remaining": hoursRemaining})
}

// NewTerminalState rejects a status-changing operation on a resolved or
// rejected grievance.
func NewTerminalState(status string) error {
	return NewDomainError("TERMINAL_STATE",
		fmt.Sprintf("grievance is %s and accepts no further changes", status),
		http.StatusConflict,
		map[string]any{"status": status})
}

// NewDeliveryFailure reports an exhausted notification dispatch. Business
// operations that merely trigger a notification never return this; it is
// reserved for endpoints whose whole purpose is the send.
func NewDeliveryFailure(reason string) error {
	return NewDomainError("DELIVERY_FAILED", reason, http.StatusBadGateway, nil)
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// MapError converts generic errors to DomainError.
func MapError(err error) error {
	return ToDomainError(err)
}

// IsCode reports whether err is a DomainError with the given code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}
