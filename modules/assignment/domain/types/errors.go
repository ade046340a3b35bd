package types

import (
	"encoding/json"
	"errors"
)

type ValidationError struct {
	msg     string
	payload json.RawMessage
}

func (e *ValidationError) Error() string { return e.msg }

// Payload returns the value that failed validation, if one was attached.
func (e *ValidationError) Payload() json.RawMessage { return e.payload }

func NewValidationError(msg string) error { return &ValidationError{msg: msg} }

func NewValidationErrorWithPayload(msg string, payload json.RawMessage) error {
	return &ValidationError{msg: msg, payload: payload}
}

func IsValidationError(err error) bool {
	_, ok := errors.AsType[*ValidationError](err)
	return ok
}

type OverlapError struct {
	msg         string
	conflicting Assignment
}

func (e *OverlapError) Error() string { return e.msg }

// Conflicting returns the existing assignment whose validity window
// intersects the rejected one.
func (e *OverlapError) Conflicting() Assignment { return e.conflicting }

func NewOverlapError(msg string, conflicting Assignment) error {
	return &OverlapError{msg: msg, conflicting: conflicting}
}

func IsOverlapError(err error) bool {
	_, ok := errors.AsType[*OverlapError](err)
	return ok
}

func OverlapConflicting(err error) (Assignment, bool) {
	e, ok := errors.AsType[*OverlapError](err)
	if !ok {
		return Assignment{}, false
	}
	return e.conflicting, true
}

type NotFoundError struct {
	msg string
}

func (e *NotFoundError) Error() string { return e.msg }

func NewNotFoundError(msg string) error { return &NotFoundError{msg: msg} }

func IsNotFoundError(err error) bool {
	_, ok := errors.AsType[*NotFoundError](err)
	return ok
}
