/*
Copyright 2026 The SkyServ Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package skyerrors provides the error type used across the czar.
//
// Every component returns plain errors; this package attaches a Code that
// drives the retry and reporting policy, and supports wrapping with context
// while preserving the code of the innermost coded error.
package skyerrors

import (
	"errors"
	"fmt"
)

// New returns an error with the given code and message.
func New(code Code, message string) error {
	return &fundamental{code: code, msg: message}
}

// Errorf formats according to a format specifier and returns an error with
// the given code.
func Errorf(code Code, format string, args ...any) error {
	return &fundamental{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap returns an error annotating err with a new message.
// If err is nil, Wrap returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrapping{cause: err, msg: message}
}

// Wrapf returns an error annotating err with the format specifier.
// If err is nil, Wrapf returns nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrapping{cause: err, msg: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of the innermost coded error in err's chain.
// A nil error has code OK; an uncoded error has code Internal.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var coded *fundamental
	if errors.As(err, &coded) {
		return coded.code
	}
	return Internal
}

// RootCause unwraps err until it reaches an error that does not wrap
// another, and returns it.
func RootCause(err error) error {
	for err != nil {
		cause := errors.Unwrap(err)
		if cause == nil {
			return err
		}
		err = cause
	}
	return err
}

type fundamental struct {
	code Code
	msg  string
}

func (f *fundamental) Error() string { return f.msg }

type wrapping struct {
	cause error
	msg   string
}

func (w *wrapping) Error() string { return w.msg + ": " + w.cause.Error() }
func (w *wrapping) Unwrap() error { return w.cause }
