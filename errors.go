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
	"github.com/go-kivik/minicouch/chttp"
	"github.com/go-kivik/minicouch/internal"
)

// Error represents an error detected locally, such as a request body which
// cannot be encoded. Errors returned by the server are of type [*HTTPError].
type Error = internal.Error

// HTTPError is returned for any response with a status code of 400 or
// greater. Its message is the server-supplied reason, if any, otherwise the
// server-supplied error name, otherwise a generic message naming the status
// code.
type HTTPError = chttp.HTTPError

// HTTPStatus returns the HTTP status code embedded in the error, or 500
// (internal server error), if there was no specified status code. If err is
// nil, HTTPStatus returns 0. This provides a convenient way to determine the
// precise nature of an error, without type assertions.
//
// Transport errors, such as a refused connection, carry no status, and are
// reported as 500.
func HTTPStatus(err error) int {
	return internal.HTTPStatus(err)
}
