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

package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"testing"

	"gitlab.com/flimzy/testy"
)

func TestInspectErrorCode(t *testing.T) {
	type tt struct {
		err  error
		want int
	}

	tests := testy.NewTable()
	tests.Add("nil", tt{
		err:  nil,
		want: 0,
	})
	tests.Add("standard", tt{
		err:  errors.New("foo"),
		want: 0,
	})
	tests.Add("codeErr", tt{
		err:  WithCode(errors.New("foo"), 123),
		want: 123,
	})
	tests.Add("wrapped", tt{
		err:  fmt.Errorf("%w", WithCode(errors.New("foo"), 123)),
		want: 123,
	})
	tests.Add("404", tt{
		err:  httpErr(404),
		want: ErrNotFound,
	})
	tests.Add("409", tt{
		err:  httpErr(409),
		want: ErrConflict,
	})
	tests.Add("internal server error", tt{
		err:  httpErr(500),
		want: ErrInternalServerError,
	})
	tests.Add("bad gateway", tt{
		err:  httpErr(502),
		want: ErrProtocol,
	})
	tests.Add("501", tt{
		err:  httpErr(501),
		want: ErrUnknown,
	})
	tests.Add("connection refused", tt{
		err: &url.Error{Op: "Get", URL: "http://localhost:1/", Err: &net.OpError{
			Op:  "dial",
			Net: "tcp",
			Err: errors.New("connection refused"),
		}},
		want: ErrUnavailable,
	})
	tests.Add("no such host", tt{
		err: &url.Error{Op: "Get", URL: "http://nowhere.invalid/", Err: &net.OpError{
			Op:  "dial",
			Net: "tcp",
			Err: &net.DNSError{Err: "no such host", Name: "nowhere.invalid", IsNotFound: true},
		}},
		want: ErrNoHost,
	})
	tests.Add("json syntax", tt{
		err:  json.Unmarshal([]byte("{"), &struct{}{}),
		want: ErrProtocol,
	})

	tests.Run(t, func(t *testing.T, tt tt) {
		got := InspectErrorCode(tt.err)
		if got != tt.want {
			t.Errorf("want %d, got %d", tt.want, got)
		}
	})
}

func TestCode(t *testing.T) {
	if err := Code(ErrUsage, nil); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
	err := Code(ErrUsage, "bad ", "flag")
	if err.Error() != "bad flag" {
		t.Errorf("Unexpected message: %s", err)
	}
	if code := InspectErrorCode(err); code != ErrUsage {
		t.Errorf("Unexpected code: %d", code)
	}
	orig := errors.New("orig")
	if err := Code(ErrData, orig); !errors.Is(err, orig) {
		t.Errorf("Expected wrapped error, got %v", err)
	}
	if err := Codef(ErrData, "bad %s", "input"); err.Error() != "bad input" {
		t.Errorf("Unexpected message: %s", err)
	}
	if err := HTTPStatus(http.StatusNotFound, "missing"); InspectErrorCode(err) != ErrNotFound {
		t.Errorf("Unexpected code for %v", err)
	}
}

type httpErr int

func (e httpErr) Error() string {
	return http.StatusText(int(e))
}

func (e httpErr) HTTPStatus() int {
	return int(e)
}
