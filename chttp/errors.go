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

package chttp

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
)

// HTTPError is returned for any response with a status of 400 or greater.
type HTTPError struct {
	// Response is the HTTP response received by the client. The response body
	// will already be closed, but the response and request headers and other
	// metadata will typically be in tact for debugging purposes.
	Response *http.Response `json:"-"`

	// Name is the server-supplied error name, such as "not_found".
	Name string `json:"error"`

	// Reason is the server-supplied error reason.
	Reason string `json:"reason"`

	// Body is the raw response body. It is empty for HEAD requests.
	Body []byte `json:"-"`
}

// Error returns the server-supplied reason, or if none, the server-supplied
// error name, or failing that, a generic message naming the status code.
func (e *HTTPError) Error() string {
	switch {
	case e.Reason != "":
		return e.Reason
	case e.Name != "":
		return e.Name
	}
	return fmt.Sprintf("request failed with status %d", e.HTTPStatus())
}

// HTTPStatus returns the HTTP status code of the response.
func (e *HTTPError) HTTPStatus() int {
	return e.Response.StatusCode
}

// Decode unmarshals the JSON response body into v.
func (e *HTTPError) Decode(v interface{}) error {
	return json.Unmarshal(e.Body, v)
}

// ResponseError returns an error from an *http.Response if the status code
// indicates an error. The response body is consumed and closed in that case.
func ResponseError(resp *http.Response) error {
	if resp.StatusCode < 400 { // nolint:gomnd
		return nil
	}
	httpErr := &HTTPError{
		Response: resp,
	}
	if resp.Body == nil {
		return httpErr
	}
	defer CloseBody(resp.Body)
	if resp.Request != nil && resp.Request.Method == http.MethodHead {
		return httpErr
	}
	httpErr.Body, _ = io.ReadAll(resp.Body)
	if ct, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); IsJSON(ct) {
		_ = json.Unmarshal(httpErr.Body, httpErr)
	}
	return httpErr
}
