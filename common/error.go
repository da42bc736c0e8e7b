// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package common

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// ErrorCode classifies benchmark failures. Callers branch on it, for
// example a rate search keeps partial results on TrafficGenErr.
type ErrorCode int

// Failure classes of configuration, rate parsing, traffic generation,
// hop accounting and generator launch.
const (
	_ ErrorCode = iota
	Fail
	ParseRateErr
	UnknownRateTypeErr
	TrafficGenErr
	ConfigErr
	BadArgument
	BadHopsErr
	CounterSourceErr
	LaunchErr
	NoTargetsErr
)

// BenchError is a classified benchmark failure with an optional
// underlying cause such as a docker or netlink error.
type BenchError struct {
	Code     ErrorCode
	Message  string
	CauseErr error
}

type causer interface {
	Cause() error
}

// Error reports message, code and cause.
func (err BenchError) Error() string {
	if err.CauseErr != nil {
		return fmt.Sprintf("%s (%d): %v", err.Message, err.Code, err.CauseErr)
	}
	return fmt.Sprintf("%s (%d)", err.Message, err.Code)
}

// GetBenchErrorCode returns failure class of err, -1 when err is not a
// benchmark failure.
func GetBenchErrorCode(err error) ErrorCode {
	if berr := GetBenchError(err); berr != nil {
		return berr.Code
	}
	return -1
}

func checkAndGetBenchErrPointer(err error) *BenchError {
	if err != nil {
		if berr, ok := err.(BenchError); ok {
			return &berr
		} else if berr, ok := err.(*BenchError); ok {
			return berr
		}
	}
	return nil
}

// GetBenchError returns the benchmark failure err carries, directly or
// under the stack added by WrapWithBenchError, nil for other errors.
func GetBenchError(err error) (berr *BenchError) {
	berr = checkAndGetBenchErrPointer(err)
	if berr == nil {
		if cause, ok := err.(causer); ok {
			berr = checkAndGetBenchErrPointer(cause.Cause())
		}
	}
	return berr
}

// IsTrafficGenError reports whether err is a traffic generator fault.
// Such faults stop a rate search but keep its partial results.
func IsTrafficGenError(err error) bool {
	return GetBenchErrorCode(err) == TrafficGenErr
}

// Cause returns the innermost error behind a benchmark failure, err
// itself when it has no cause.
func (err *BenchError) Cause() error {
	if err == nil {
		return nil
	}
	if err.CauseErr != nil {
		if cause, ok := err.CauseErr.(causer); ok {
			return cause.Cause()
		}
		return err.CauseErr
	}
	return err
}

// Format prints the failure for %s, %v and %q. With %+v the cause is
// printed first with its stack trace, then the message.
func (err *BenchError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			if cause := err.Cause(); cause != err && cause != nil {
				fmt.Fprintf(s, "%+v\n", err.Cause())
				io.WriteString(s, err.Message)
				return
			}
		}
		fallthrough
	case 's', 'q':
		io.WriteString(s, err.Error())
	}
}

// WrapWithBenchError classifies err as a benchmark failure of code and
// records the stack of the caller. Nil err gives a failure without
// cause.
func WrapWithBenchError(err error, message string, code ErrorCode) error {
	err = &BenchError{
		CauseErr: err,
		Message:  message,
		Code:     code,
	}
	return errors.WithStack(err)
}

// NewBenchErrorf returns a benchmark failure of code with a formatted
// message and no cause.
func NewBenchErrorf(code ErrorCode, format string, v ...interface{}) error {
	return WrapWithBenchError(nil, fmt.Sprintf(format, v...), code)
}
