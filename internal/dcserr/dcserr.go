// Package dcserr defines the wire-visible error taxonomy shared by every
// command handler, processor, and the dispatcher.
package dcserr

import "fmt"

// Type is one of the closed set of error kinds the wire protocol names as
// errorType on an error response.
type Type string

const (
	ProtocolError       Type = "ProtocolError"
	DeserializationError Type = "DeserializationError"
	UnknownCommand      Type = "UnknownCommand"
	WrongMode           Type = "WrongMode"
	PermissionDenied    Type = "PermissionDenied"
	InvalidArgument     Type = "InvalidArgument"
	NotFound            Type = "NotFound"
	AlreadyExists       Type = "AlreadyExists"
	AlreadyHeld         Type = "AlreadyHeld"
	NotHeld             Type = "NotHeld"
	Cancelled           Type = "Cancelled"
	IoError             Type = "IoError"
)

// Error is the error value every command handler and processor returns.
// The dispatcher and codec both understand it; anything else returned by a
// handler is wrapped as an IoError so the wire always carries one of the
// known types.
type Error struct {
	Kind    Type
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New builds an *Error of the given kind.
func New(kind Type, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Fatal reports whether an error of this kind must close the connection
// rather than merely be reported as an error response (spec §7).
func (e *Error) Fatal() bool {
	return e.Kind == ProtocolError
}

// AsWireError maps an arbitrary error to an (*Error); unrecognized errors
// become IoError so the wire format always has a known errorType.
func AsWireError(err error) *Error {
	if err == nil {
		return nil
	}
	var de *Error
	if ok := asError(err, &de); ok {
		return de
	}
	return &Error{Kind: IoError, Message: err.Error()}
}

func asError(err error, target **Error) bool {
	for err != nil {
		if de, ok := err.(*Error); ok {
			*target = de
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
