package fetch

import (
	"errors"
	"fmt"
)

// Kind classifies a fetch failure.
type Kind string

const (
	KindInvalidURL Kind = "invalid-url"
	KindDNS        Kind = "dns"
	KindBlocked    Kind = "blocked-address"
	KindTimeout    Kind = "timeout"
	KindOversized  Kind = "oversized"
	KindBadStatus  Kind = "bad-status"
	KindNetwork    Kind = "network"
)

// Error is returned for every failed fetch.
type Error struct {
	Kind       Kind
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := "fetch " + string(e.Kind)
	if e.URL != "" {
		msg += " " + e.URL
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or "" when err is not a fetch error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
