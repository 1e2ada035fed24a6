package transform

import (
	"errors"
	"fmt"
)

// ErrFatal marks every error returned by a transform. A fatal error ends the
// transform for that artifact; callers must not retry it or keep its output.
var ErrFatal = errors.New("transform failed")

// ErrOutputCollision is returned when the derived output path would overwrite
// the input archive.
var ErrOutputCollision = errors.New("output path equals input path")

// ErrorCode classifies a transform failure.
type ErrorCode string

const (
	// CodeInputUnresolved indicates the input artifact location could not be resolved.
	CodeInputUnresolved ErrorCode = "INPUT_UNRESOLVED"

	// CodeOutputRejected indicates the host refused to register the output.
	CodeOutputRejected ErrorCode = "OUTPUT_REJECTED"

	// CodeOutputCollision indicates the output would replace the input.
	CodeOutputCollision ErrorCode = "OUTPUT_COLLISION"

	// CodeScanFailed indicates the scanner could not read the archive or write the result.
	CodeScanFailed ErrorCode = "SCAN_FAILED"

	// CodeCanceled indicates the context was canceled before the scan completed.
	CodeCanceled ErrorCode = "CANCELED"
)

// Error is the failure of a single transform invocation.
type Error struct {
	Code   ErrorCode
	Input  string
	Output string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s: %s", ErrFatal.Error(), e.Code)
	if e.Input != "" {
		msg += fmt.Sprintf(" (input %s", e.Input)
		if e.Output != "" {
			msg += fmt.Sprintf(", output %s", e.Output)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports ErrFatal for every transform error.
func (e *Error) Is(target error) bool {
	return target == ErrFatal
}

// CodeOf returns the ErrorCode carried by err, or "" if err is not a transform error.
func CodeOf(err error) ErrorCode {
	var te *Error
	if errors.As(err, &te) && te != nil {
		return te.Code
	}
	return ""
}
