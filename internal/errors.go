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

// Package internal holds helpers shared by the minicouch packages.
package internal

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is an error with an associated HTTP status. It is returned for
// problems detected locally, before or after talking to the server.
type Error struct {
	// Status is the HTTP status code associated with the error. Defaults to
	// 500.
	Status int

	// Message is a human-readable description of the error. It may be empty.
	Message string

	// Err is the underlying error, if any.
	Err error
}

var _ interface {
	error
	HTTPStatus() int
	Unwrap() error
	fmt.Formatter
} = &Error{}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return http.StatusText(e.HTTPStatus())
}

// HTTPStatus returns the HTTP status code associated with the error.
func (e *Error) HTTPStatus() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Format implements fmt.Formatter. The %+v verb includes the status code.
func (e *Error) Format(f fmt.State, c rune) {
	if c != 'v' || !f.Flag('+') {
		_, _ = fmt.Fprint(f, e.Error())
		return
	}
	const partsLen = 3
	parts := make([]string, 0, partsLen)
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	status := e.HTTPStatus()
	parts = append(parts, fmt.Sprintf("%d / %s", status, http.StatusText(status)))
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	_, _ = fmt.Fprint(f, strings.Join(parts, ": "))
}

// HTTPStatus returns the HTTP status code embedded in err, 0 if err is nil,
// or 500 if err carries no status.
func HTTPStatus(err error) int {
	if err == nil {
		return 0
	}
	var coder interface {
		HTTPStatus() int
	}
	if errors.As(err, &coder) {
		return coder.HTTPStatus()
	}
	return http.StatusInternalServerError
}
