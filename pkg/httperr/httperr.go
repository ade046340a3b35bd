package httperr

import "errors"

// BadRequestError marks transport-level input problems (malformed dates,
// missing fields) caught before any domain call is made. Code feeds the
// JSON error envelope.
type BadRequestError struct {
	Code   string
	Reason string
}

func (e *BadRequestError) Error() string { return e.Reason }

func NewBadRequest(code string, reason string) error {
	return &BadRequestError{Code: code, Reason: reason}
}

func AsBadRequest(err error) (*BadRequestError, bool) {
	return errors.AsType[*BadRequestError](err)
}

func IsBadRequest(err error) bool {
	_, ok := AsBadRequest(err)
	return ok
}
