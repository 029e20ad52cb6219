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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/go-kivik/minicouch/chttp"
)

// Kind classifies a Result.
type Kind int

// The result kinds, in order of precedence.
const (
	// KindHeaders is the result of a HEAD request. Only Header is set.
	KindHeaders Kind = iota
	// KindStream is the result of a request with Stream set. Stream holds
	// the unread response body.
	KindStream
	// KindJSON is the result of a response declaring a JSON content type.
	// JSON holds the parsed body, which is nil for an empty body.
	KindJSON
	// KindText is the result of a response declaring a text/* content type.
	// Text holds the body, decoded from the declared charset.
	KindText
	// KindBytes is the result for any other response, including one with
	// no content type. Bytes holds the raw body.
	KindBytes
)

var kindNames = map[Kind]string{
	KindHeaders: "headers",
	KindStream:  "stream",
	KindJSON:    "json",
	KindText:    "text",
	KindBytes:   "bytes",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Result is the outcome of a successful request.
type Result struct {
	Kind Kind

	// StatusCode is the HTTP status code of the response.
	StatusCode int

	// Header maps lower-cased response header names to their values. Multiple
	// values for the same header are joined with ", ".
	Header map[string]string

	JSON   interface{}
	Text   string
	Bytes  []byte
	Stream *Stream

	// raw is the body, for all kinds but KindHeaders and KindStream.
	raw []byte
}

func newResult(res *http.Response, method string, stream bool) (*Result, error) {
	r := &Result{
		StatusCode: res.StatusCode,
		Header:     headerMap(res.Header),
	}
	switch {
	case method == http.MethodHead:
		chttp.CloseBody(res.Body)
		r.Kind = KindHeaders
		return r, nil
	case stream:
		r.Kind = KindStream
		r.Stream = newStream(res.Body)
		return r, nil
	}

	var body []byte
	if res.Body != nil {
		var err error
		body, err = io.ReadAll(res.Body)
		chttp.CloseBody(res.Body)
		if err != nil {
			return nil, &Error{Status: http.StatusBadGateway, Err: err}
		}
	}
	r.raw = body
	mediaType, params, _ := mime.ParseMediaType(res.Header.Get("Content-Type"))
	switch {
	case chttp.IsJSON(mediaType):
		r.Kind = KindJSON
		if len(bytes.TrimSpace(body)) == 0 {
			return r, nil
		}
		if err := json.Unmarshal(body, &r.JSON); err != nil {
			return nil, &Error{Status: http.StatusBadGateway, Err: err}
		}
	case strings.HasPrefix(mediaType, "text/"):
		r.Kind = KindText
		r.Text = decodeText(body, params["charset"])
	default:
		r.Kind = KindBytes
		r.Bytes = body
	}
	return r, nil
}

func headerMap(h http.Header) map[string]string {
	m := make(map[string]string, len(h))
	for k, v := range h {
		m[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	return m
}

// decodeText converts body from charset to UTF-8. Unknown charsets are
// passed through unaltered.
func decodeText(body []byte, charset string) string {
	if charset == "" {
		return string(body)
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return string(body)
	}
	text, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return string(body)
	}
	return string(text)
}

// Decode unmarshals the response body, as JSON, into v. For a KindStream
// result, the stream is consumed and closed. A KindHeaders result has no body
// to decode.
func (r *Result) Decode(v interface{}) error {
	switch r.Kind {
	case KindHeaders:
		return &Error{Status: http.StatusBadRequest, Err: errors.New("minicouch: HEAD result has no body")}
	case KindStream:
		defer r.Stream.Close() // nolint: errcheck
		if err := json.NewDecoder(r.Stream).Decode(v); err != nil {
			return &Error{Status: http.StatusBadGateway, Err: err}
		}
		return nil
	}
	if err := json.Unmarshal(r.raw, v); err != nil {
		return &Error{Status: http.StatusBadGateway, Err: err}
	}
	return nil
}
