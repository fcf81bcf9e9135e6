// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package convert

import (
	"errors"
	"fmt"

	"github.com/gogpu/shaderconv/d3d9"
)

// ErrorKind categorizes conversion errors.
type ErrorKind uint8

const (
	// InvalidArgument indicates a missing or inconsistent input, such as a
	// pixel conversion without the upstream vertex output layout.
	InvalidArgument ErrorKind = iota

	// UnsupportedVersion indicates a version token outside the supported set.
	UnsupportedVersion

	// MalformedStream indicates a token stream that cannot be decoded or
	// references a register invalid for its shader class.
	MalformedStream

	// AllocationFailure indicates an output that could not be produced at
	// the required size.
	AllocationFailure

	// CapacityExceeded indicates a fixed-size table asked to hold more
	// entries than its bound.
	CapacityExceeded

	// InternalError indicates a converter defect.
	InternalError
)

// String returns a human-readable error kind name.
func (k ErrorKind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case UnsupportedVersion:
		return "UnsupportedVersion"
	case MalformedStream:
		return "MalformedStream"
	case AllocationFailure:
		return "AllocationFailure"
	case CapacityExceeded:
		return "CapacityExceeded"
	case InternalError:
		return "InternalError"
	default:
		return "Unknown"
	}
}

// Error is a terminal conversion error.
type Error struct {
	// Kind categorizes the error.
	Kind ErrorKind

	// Message provides details about the error.
	Message string

	// Offset is the byte offset in the legacy stream, or -1.
	Offset int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("convert %s at byte %d: %s", e.Kind, e.Offset, e.Message)
	}
	return fmt.Sprintf("convert %s: %s", e.Kind, e.Message)
}

// Is matches sentinel errors of the same kind, so that
// errors.Is(err, ErrMalformedStream) holds for every malformed stream error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Message == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrInvalidArgument    = &Error{Kind: InvalidArgument, Offset: -1}
	ErrUnsupportedVersion = &Error{Kind: UnsupportedVersion, Offset: -1}
	ErrMalformedStream    = &Error{Kind: MalformedStream, Offset: -1}
	ErrAllocationFailure  = &Error{Kind: AllocationFailure, Offset: -1}
	ErrCapacityExceeded   = &Error{Kind: CapacityExceeded, Offset: -1}
	ErrInternal           = &Error{Kind: InternalError, Offset: -1}
)

// NewError creates an error without a stream offset.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Offset:  -1,
	}
}

// Errorf creates an error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return NewError(kind, fmt.Sprintf(format, args...))
}

// errorAt creates an error at a stream offset.
func errorAt(kind ErrorKind, offset int, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Offset: offset}
}

// KindOf returns the kind of err, or InternalError if err is not a
// conversion error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return InternalError
}

// fromDecode maps a decoder failure onto MalformedStream.
func fromDecode(err error) *Error {
	var de *d3d9.DecodeError
	if errors.As(err, &de) {
		return errorAt(MalformedStream, de.Offset, "%s", de.Reason)
	}
	return NewError(MalformedStream, err.Error())
}
