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
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-kivik/minicouch/chttp"
	"github.com/go-kivik/minicouch/multipart"
)

// Options are the options for a single request. The zero value is a GET
// request with the default headers.
type Options struct {
	// Method is the HTTP method. Defaults to GET.
	Method string

	// Header is merged, field by field, over the default headers
	// (Content-Type: application/json, User-Agent, and Authorization, when
	// the DSN carries credentials). A key with no values removes the
	// corresponding default. A Cookie header, if set, is sent instead of the
	// cookie jar's.
	Header http.Header

	// Body is the request body. Strings, byte slices, json.RawMessage and
	// io.Readers are sent unaltered. url.Values are form-encoded. Any other
	// value is encoded according to the Content-Type header, as JSON by
	// default.
	Body interface{}

	// Query parameters. The values for startkey, endkey, key, keys,
	// start_key and end_key are JSON-encoded. Other strings are sent as-is,
	// and other values as JSON scalars. A nil value is sent as null for the
	// JSON-encoded keys, and omitted otherwise.
	Query map[string]interface{}

	// Stream, when true, returns the response body as a [Stream], rather than
	// reading it into memory.
	Stream bool

	// Path is appended verbatim to the request path, after a slash. Use it
	// for sub-paths which must not be percent-encoded.
	Path string

	// Parts, if set, are sent as a multipart/related body. It is an error to
	// set both Body and Parts.
	Parts []multipart.Part
}

var errNoClient = &Error{Status: http.StatusBadRequest, Err: errors.New("minicouch: path is not bound to a client")}

// Do sends the request described by opts to the path. opts may be nil.
//
// Any response status of 400 or greater is returned as an [*HTTPError].
// Transport errors are returned unaltered. Otherwise the returned Result
// holds the response, classified as described for [Result].
func (p Path) Do(ctx context.Context, opts *Options) (*Result, error) {
	if p.client == nil {
		return nil, errNoClient
	}
	if opts == nil {
		opts = &Options{}
	}
	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
	}
	res, err := p.client.client.DoReq(ctx, method, p.Finalize(opts.Path), &chttp.Options{
		Header: opts.Header,
		Query:  opts.Query,
		Body:   opts.Body,
		Parts:  opts.Parts,
	})
	if err != nil {
		return nil, err
	}
	if err := chttp.ResponseError(res); err != nil {
		return nil, err
	}
	return newResult(res, method, opts.Stream)
}

// DoJSON sends the request, then decodes the response body into v. See
// [Result.Decode].
func (p Path) DoJSON(ctx context.Context, opts *Options, v interface{}) error {
	res, err := p.Do(ctx, opts)
	if err != nil {
		return err
	}
	return res.Decode(v)
}
