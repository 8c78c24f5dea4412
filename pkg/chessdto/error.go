package chessdto

import (
	"errors"
	"strings"
)

// ErrorKind classifies failures surfaced by the client components.
type ErrorKind string

const (
	KindAuth       ErrorKind = "auth"
	KindValidation ErrorKind = "validation"
	KindAPI        ErrorKind = "api"
	KindTransport  ErrorKind = "transport"
	// KindGone marks a 401/404 on a game-state fetch: the game no longer exists for this user.
	KindGone ErrorKind = "gone"
)

// DefaultErrorMessage is used when the server gave no readable reason.
const DefaultErrorMessage = "request failed"

type DomainError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Kind != "" {
		return string(e.Kind) + " error"
	}
	return DefaultErrorMessage
}

func (e *DomainError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WithKind returns a copy of e reclassified as kind. Status, message and cause are kept.
func (e *DomainError) WithKind(kind ErrorKind) *DomainError {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Kind = kind
	return &cp
}

// KindOf reports the kind of the first DomainError in err's chain, or "" when none.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// StatusOf returns the HTTP status attached to err, or 0.
func StatusOf(err error) int {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Status
	}
	return 0
}

// UserMessage returns the short text shown to the user for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var de *DomainError
	if errors.As(err, &de) {
		if msg := strings.TrimSpace(de.Message); msg != "" {
			return msg
		}
		if de.Kind == KindTransport {
			return "network unavailable"
		}
		return DefaultErrorMessage
	}
	return err.Error()
}
