// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// Error carries a message chain down to the root cause. Each Trace call
// prepends the caller's location so the final message reads like a stack.
type Error struct {
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return e.msg + ": " + e.cause.Error()
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New returns a plain sentinel error.
func New(msg string) error {
	return errors.New(msg)
}

// NewError wraps err with the caller's location.
func NewError(err error) error {
	if err == nil {
		return nil
	}
	return &Error{msg: callerPrefix(2), cause: err}
}

// NewErrorf formats a new error tagged with the caller's location.
func NewErrorf(format string, a ...interface{}) error {
	return &Error{msg: callerPrefix(2) + " " + fmt.Sprintf(format, a...)}
}

// Trace wraps err with an additional formatted message and the caller's
// location. The original error remains reachable through Cause.
func Trace(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{msg: callerPrefix(2) + " " + fmt.Sprintf(format, a...), cause: err}
}

// Cause returns the root of the message chain.
func Cause(err error) error {
	for err != nil {
		wrapped, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		next := wrapped.Unwrap()
		if next == nil {
			break
		}
		err = next
	}
	return err
}

// Is reports whether target appears anywhere in err's chain.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Stack renders the chain one message per line, outermost first.
func Stack(err error) string {
	var sb strings.Builder
	for err != nil {
		e, ok := err.(*Error)
		if !ok {
			sb.WriteString(err.Error())
			break
		}
		sb.WriteString(e.msg)
		sb.WriteString("\n")
		err = e.cause
	}
	return sb.String()
}

func callerPrefix(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "[unknown]"
	}
	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		file = file[i+1:]
	}
	return "[" + file + " " + strconv.Itoa(line) + "]"
}
