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
	"net/http"

	"github.com/go-kivik/minicouch/multipart"
)

// Options are optional parameters which may be sent with a request.
type Options struct {
	// Header is merged, field by field, over the default headers. A key
	// with no values removes the corresponding default header.
	Header http.Header

	// Query is encoded with [EncodeQuery], and appended to any query string
	// already present in the request path.
	Query map[string]interface{}

	// Body is encoded with [EncodeBody], according to the effective
	// Content-Type header.
	Body interface{}

	// Parts, if set, are sent as a multipart/related body, and the
	// Content-Type header is set accordingly. It is an error to set both
	// Body and Parts.
	Parts []multipart.Part
}
