package domain

import (
	"errors"
	"net/http"
)

// ErrorKind classifies a failure.
type ErrorKind string

const (
	KindConfiguration   ErrorKind = "configuration"
	KindUpstreamStatus  ErrorKind = "upstream_status"
	KindUpstreamNetwork ErrorKind = "upstream_network"
	KindParse           ErrorKind = "parse"
	KindValidation      ErrorKind = "validation"
	KindPersistence     ErrorKind = "persistence"
)

// ErrNotFound is returned by record stores when no row matches an id.
var ErrNotFound = errors.New("record not found")

// Error is the failure type shared by every component. Status carries the
// upstream HTTP status for KindUpstreamStatus.
type Error struct {
	Kind    ErrorKind
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a *Error in err's chain, or "" if there is none.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// MessageOf returns the human-readable message of err. For a *Error it is the
// Message field alone; otherwise err.Error().
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return err.Error()
}

// HTTPStatus maps err to the status an HTTP caller should see.
func HTTPStatus(err error) int {
	var de *Error
	if !errors.As(err, &de) {
		return http.StatusInternalServerError
	}
	switch de.Kind {
	case KindConfiguration, KindValidation:
		return http.StatusBadRequest
	case KindUpstreamStatus:
		if de.Status > 0 {
			return de.Status
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PersistenceError wraps a store failure.
func PersistenceError(op string, err error) error {
	return &Error{Kind: KindPersistence, Message: op, Err: err}
}
