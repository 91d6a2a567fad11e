// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error classification shared by the fleetlink packages.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the module.
var (
	ErrTransportClosed   = errors.New("transport is closed")
	ErrDisconnected      = errors.New("session disconnected")
	ErrOperationTimeout  = errors.New("operation timeout")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrAlreadyExists     = errors.New("resource already exists")
	ErrNotFound          = errors.New("resource not found")
	ErrAccessDenied      = errors.New("access denied")
)

// ErrorClass is the handling category of a failure.
type ErrorClass int

const (
	// ClassTransport covers closed, reset and timed out sockets. Fatal to the session.
	ClassTransport ErrorClass = iota
	// ClassProtocol covers malformed or out-of-contract peer input. Fatal to the session.
	ClassProtocol
	// ClassValidation is answered with a negative result code.
	ClassValidation
	// ClassStorage covers file system failures during a transfer.
	ClassStorage
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransport:
		return "transport"
	case ClassProtocol:
		return "protocol"
	case ClassValidation:
		return "validation"
	case ClassStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// ClassifiedError carries the class and origin of a failure.
type ClassifiedError struct {
	Class     ErrorClass
	Component string
	Operation string
	Err       error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Component, e.Operation, e.Class, e.Err)
}

// Unwrap exposes the underlying error to errors.Is / errors.As.
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// NewError wraps err with a class, component and operation.
func NewError(class ErrorClass, component, operation string, err error) *ClassifiedError {
	return &ClassifiedError{Class: class, Component: component, Operation: operation, Err: err}
}

func TransportError(component, operation string, err error) error {
	return NewError(ClassTransport, component, operation, err)
}

func ProtocolError(component, operation string, err error) error {
	return NewError(ClassProtocol, component, operation, err)
}

func ValidationError(component, operation string, err error) error {
	return NewError(ClassValidation, component, operation, err)
}

func StorageError(component, operation string, err error) error {
	return NewError(ClassStorage, component, operation, err)
}

// Classify returns the class of err. Unclassified errors count as transport failures.
func Classify(err error) ErrorClass {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	if errors.Is(err, ErrProtocolViolation) {
		return ClassProtocol
	}
	return ClassTransport
}

// IsFatal reports whether err must tear the session down.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch Classify(err) {
	case ClassTransport, ClassProtocol:
		return true
	default:
		return false
	}
}
