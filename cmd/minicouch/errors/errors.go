// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//  http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

// Package errors maps CLI failures to process exit codes.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Exit status codes
//
// See https://man.openbsd.org/sysexits.3
const (
	// ErrUsage indicates an incorrect command, option, or unparseable
	// configuration or command line options.
	ErrUsage = 2
	// ErrUnknown indicates that the server responded with an unexpected
	// status, such as one above 500.
	ErrUnknown = 3
	// ErrInternalServerError indicates that the server responded with a 500
	// error.
	ErrInternalServerError = 4

	// ErrBadRequest indicates that the server responded with a 400 error.
	// Other 4xx responses map to their status less 390.
	ErrBadRequest = 10
	// ErrUnauthorized indicates that the server responded with a 401 error.
	ErrUnauthorized = 11
	// ErrNotFound indicates that the server responded with a 404 error.
	ErrNotFound = 14
	// ErrConflict indicates that the server responded with a 409 error.
	ErrConflict = 19
	// ErrPreconditionFailed indicates that the server responded with a 412
	// error.
	ErrPreconditionFailed = 22

	// ErrData indicates that input is invalid, such as malformed JSON or
	// YAML, or a --field path which does not match the response.
	ErrData = 65
	// ErrNoInput indicates that an input file does not exist or cannot be read.
	ErrNoInput = 66
	// ErrNoHost indicates that the host does not exist or cannot be looked up.
	ErrNoHost = 67
	// ErrUnavailable indicates that the server could not be reached, such as
	// a connection refused or a timeout.
	ErrUnavailable = 69
	// ErrIO indicates an I/O error while writing output.
	ErrIO = 74
	// ErrProtocol indicates a protocol error, such as the server returning
	// an unparseable JSON response.
	ErrProtocol = 76
)

type statusErr struct {
	error
	code int
}

func (e *statusErr) Unwrap() error {
	return e.error
}

func (e *statusErr) ExitStatus() int {
	return e.code
}

// WithCode wraps err with an exit code. A nil err returns nil.
func WithCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return &statusErr{
		error: err,
		code:  code,
	}
}

// Code returns a new error with an exit code. If err is an existing error, it
// is wrapped with the code. All other values are passed to fmt.Sprint.
//
// If err is a single nil value, nil is returned.
func Code(code int, err ...interface{}) error {
	if len(err) == 1 {
		if err[0] == nil {
			return nil
		}
		if e, ok := err[0].(error); ok {
			return WithCode(e, code)
		}
	}
	return &statusErr{
		error: errors.New(fmt.Sprint(err...)),
		code:  code,
	}
}

// Codef wraps the output of fmt.Errorf with a code.
func Codef(code int, format string, args ...interface{}) error {
	return &statusErr{
		error: fmt.Errorf(format, args...),
		code:  code,
	}
}

// HTTPStatus converts status to an exit code, and passes it to Code().
func HTTPStatus(status int, err ...interface{}) error {
	return Code(fromHTTPStatus(status), err...)
}

// InspectErrorCode returns the exit code carried by, or inferred from, err.
// It returns 0 when err is nil, or no code can be determined.
func InspectErrorCode(err error) int {
	if err == nil {
		return 0
	}
	exitErr := new(statusErr)
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus()
	}

	dnsErr := new(net.DNSError)
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return ErrNoHost
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrUnavailable
	}

	jsonSyntax := new(json.SyntaxError)
	if errors.As(err, &jsonSyntax) {
		return ErrProtocol
	}

	var statusErr interface {
		HTTPStatus() int
	}
	if errors.As(err, &statusErr) {
		return fromHTTPStatus(statusErr.HTTPStatus())
	}

	return 0
}

func fromHTTPStatus(status int) int {
	switch {
	case status == http.StatusInternalServerError:
		return ErrInternalServerError
	case status == http.StatusBadGateway:
		// The server's response could not be understood.
		return ErrProtocol
	case status >= 400 && status < 500:
		return status - 390 // nolint:gomnd
	default:
		return ErrUnknown
	}
}
