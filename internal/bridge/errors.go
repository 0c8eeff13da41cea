package bridge

import (
	"errors"
	"fmt"
)

// Kind categorizes bridge errors.
type Kind string

const (
	// KindTransport covers the subscription and the downstream sink.
	KindTransport Kind = "TRANSPORT"

	// KindValidation indicates a revision rejected by the schema or
	// transformer. Never fatal.
	KindValidation Kind = "VALIDATION"

	// KindPersistence indicates the regression store failed.
	KindPersistence Kind = "PERSISTENCE"

	// KindMalformed indicates an undecodable stream record. Never fatal.
	KindMalformed Kind = "MALFORMED"
)

// Error is a categorized failure raised while processing the stream.
type Error struct {
	Kind    Kind
	Message string
	NodeID  string // Empty when no node was involved
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.NodeID != "" {
		msg += fmt.Sprintf(" (node=%s)", e.NodeID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fatal reports whether the error must stop the loop.
func (e *Error) Fatal() bool {
	return e.Kind == KindTransport || e.Kind == KindPersistence
}

func kindOf(err error) (Kind, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind, true
	}
	return "", false
}

// IsTransport returns true if err is a transport error.
// Uses errors.As to handle wrapped errors.
func IsTransport(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindTransport
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindValidation
}

// IsPersistence returns true if err is a persistence error.
func IsPersistence(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindPersistence
}

// IsMalformed returns true if err is a malformed record error.
func IsMalformed(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindMalformed
}

// IsFatal returns true if err must stop the loop.
func IsFatal(err error) bool {
	var be *Error
	return errors.As(err, &be) && be.Fatal()
}

// NewTransportError wraps a stream or sink failure.
func NewTransportError(nodeID, message string, err error) *Error {
	return &Error{Kind: KindTransport, Message: message, NodeID: nodeID, Err: err}
}

// NewValidationError wraps a transform or schema failure.
func NewValidationError(nodeID, message string, err error) *Error {
	return &Error{Kind: KindValidation, Message: message, NodeID: nodeID, Err: err}
}

// NewPersistenceError wraps a regression store failure.
func NewPersistenceError(nodeID, message string, err error) *Error {
	return &Error{Kind: KindPersistence, Message: message, NodeID: nodeID, Err: err}
}

// NewMalformedError wraps a stream record that could not be decoded.
func NewMalformedError(message string, err error) *Error {
	return &Error{Kind: KindMalformed, Message: message, Err: err}
}
