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

	"golang.org/x/time/rate"
)

// rateLimit is an http.RoundTripper which waits for a token from limiter
// before each request.
type rateLimit struct {
	limiter   *rate.Limiter
	transport http.RoundTripper
}

var _ http.RoundTripper = &rateLimit{}

// RateLimit returns a RoundTripper which allows at most rps requests per
// second through transport, with bursts of up to burst requests. A nil
// transport means http.DefaultTransport. If rps or burst is not positive,
// transport is returned unaltered.
func RateLimit(transport http.RoundTripper, rps float64, burst int) http.RoundTripper {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if rps <= 0 || burst <= 0 {
		return transport
	}
	return &rateLimit{
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		transport: transport,
	}
}

// RoundTrip fulfills the http.RoundTripper interface. It blocks until the
// limiter permits the request, or the request's context is done.
func (r *rateLimit) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := r.limiter.Wait(req.Context()); err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}
	return r.transport.RoundTrip(req)
}
