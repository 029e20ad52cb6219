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

package minicouch

import (
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/go-kivik/minicouch/internal/couchtest"
)

type customTransport func(*http.Request) (*http.Response, error)

var _ http.RoundTripper = customTransport(nil)

func (c customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return c(req)
}

// newCustomClient returns a client for http://example.com/, whose requests
// are served by fn.
func newCustomClient(t *testing.T, fn func(*http.Request) (*http.Response, error), options ...Option) *Client {
	t.Helper()
	options = append([]Option{
		OptionHTTPClient(&http.Client{Transport: customTransport(fn)}),
	}, options...)
	c, err := New("http://example.com/", options...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// respond returns a response to req, with the given status, content type and
// body.
func respond(req *http.Request, status int, contentType, body string) *http.Response {
	header := http.Header{}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return &http.Response{
		StatusCode:    status,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

// newCouchServer starts a fake CouchDB server, which is shut down at the end
// of the test.
func newCouchServer(t *testing.T, options ...couchtest.Option) *httptest.Server {
	t.Helper()
	s := httptest.NewServer(couchtest.New(options...))
	t.Cleanup(s.Close)
	return s
}

func newClient(t *testing.T, dsn string, options ...Option) *Client {
	t.Helper()
	c, err := New(dsn, options...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// checkError fails the test unless err matches the regular expression re and
// carries status. It reports whether err was non-nil, in which case the caller
// should stop checking the result.
func checkError(t *testing.T, re string, status int, err error) bool {
	t.Helper()
	if re == "" {
		if err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}
		return false
	}
	if err == nil {
		t.Fatalf("Expected error matching %q, got none", re)
	}
	if !regexp.MustCompile(re).MatchString(err.Error()) {
		t.Errorf("Expected error matching %q, got %q", re, err)
	}
	if got := HTTPStatus(err); got != status {
		t.Errorf("Expected status %d, got %d", status, got)
	}
	return true
}
