// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package convert

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorKind_String(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{InvalidArgument, "InvalidArgument"},
		{UnsupportedVersion, "UnsupportedVersion"},
		{MalformedStream, "MalformedStream"},
		{AllocationFailure, "AllocationFailure"},
		{CapacityExceeded, "CapacityExceeded"},
		{InternalError, "InternalError"},
		{ErrorKind(255), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("ErrorKind.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_Error(t *testing.T) {
	err := NewError(InvalidArgument, "no upstream layout")
	if got := err.Error(); !strings.Contains(got, "InvalidArgument") || !strings.Contains(got, "no upstream layout") {
		t.Errorf("Error() = %q", got)
	}
	if strings.Contains(err.Error(), "byte") {
		t.Errorf("error without offset mentions a byte: %q", err.Error())
	}

	at := errorAt(MalformedStream, 24, "bad register")
	if got := at.Error(); !strings.Contains(got, "byte 24") {
		t.Errorf("Error() with offset = %q", got)
	}
}

func TestError_Is(t *testing.T) {
	err := fmt.Errorf("converting: %w", Errorf(MalformedStream, "opcode %d", 99))

	if !errors.Is(err, ErrMalformedStream) {
		t.Error("wrapped malformed stream error does not match its sentinel")
	}
	if errors.Is(err, ErrInvalidArgument) {
		t.Error("malformed stream error matches the invalid argument sentinel")
	}
	if KindOf(err) != MalformedStream {
		t.Errorf("KindOf = %v", KindOf(err))
	}
	if KindOf(errors.New("plain")) != InternalError {
		t.Error("KindOf of a foreign error should be InternalError")
	}
}

func TestAt_KeepsExistingOffset(t *testing.T) {
	var e *Error
	if !errors.As(at(NewError(MalformedStream, "x"), 8), &e) || e.Offset != 8 {
		t.Fatalf("offset not attached: %v", e)
	}
	if !errors.As(at(errorAt(MalformedStream, 4, "x"), 8), &e) || e.Offset != 4 {
		t.Fatalf("existing offset replaced: %v", e)
	}
}
