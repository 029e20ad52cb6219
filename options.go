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
	"fmt"
	"net/http"

	"github.com/go-kivik/minicouch/chttp"
	"github.com/go-kivik/minicouch/cookiejar"
)

// Option is a client option. Options are passed to [New].
type Option interface {
	// Apply applies the option to target, if target is of the expected type.
	// Unrecognized target types are ignored.
	Apply(target interface{})
	// String returns a human-readable description of the option.
	String() string
}

type allOptions []Option

var _ Option = (allOptions)(nil)

func (o allOptions) Apply(t interface{}) {
	for _, opt := range o {
		if opt != nil {
			opt.Apply(t)
		}
	}
}

func (o allOptions) String() string {
	return fmt.Sprintf("%v", []Option(o))
}

type optionHTTPClient struct {
	client *http.Client
}

func (o optionHTTPClient) Apply(target interface{}) {
	if client, ok := target.(*Client); ok {
		client.httpClient = o.client
	}
}

func (optionHTTPClient) String() string { return "[HTTPClient]" }

// OptionHTTPClient sets the *http.Client used to make requests. The client is
// copied, so later changes to it have no effect, and its Jar is ignored.
func OptionHTTPClient(client *http.Client) Option {
	return optionHTTPClient{client: client}
}

type optionUserAgent string

func (a optionUserAgent) Apply(target interface{}) {
	if client, ok := target.(*chttp.Client); ok {
		client.UserAgents = append(client.UserAgents, string(a))
	}
}

func (a optionUserAgent) String() string {
	return fmt.Sprintf("[UserAgent:%s]", string(a))
}

// OptionUserAgent appends to the default User-Agent header sent on all
// requests.
func OptionUserAgent(ua string) Option {
	return optionUserAgent(ua)
}

type optionClientTrace struct {
	trace *chttp.ClientTrace
}

func (o optionClientTrace) Apply(target interface{}) {
	if client, ok := target.(*chttp.Client); ok {
		client.Trace = o.trace
	}
}

func (optionClientTrace) String() string { return "[ClientTrace]" }

// OptionClientTrace sets hooks to be called for every request made by the
// client. Hooks attached to a request context with
// [chttp.WithClientTrace] take precedence.
func OptionClientTrace(trace *chttp.ClientTrace) Option {
	return optionClientTrace{trace: trace}
}

type optionRateLimit struct {
	rps   float64
	burst int
}

func (o optionRateLimit) Apply(target interface{}) {
	if client, ok := target.(*chttp.Client); ok {
		client.Transport = chttp.RateLimit(client.Transport, o.rps, o.burst)
	}
}

func (o optionRateLimit) String() string {
	return fmt.Sprintf("[RateLimit:%g/s,burst=%d]", o.rps, o.burst)
}

// OptionRateLimit limits the client to rps requests per second, with bursts
// of up to burst requests. Requests wait for their turn, until their context
// is cancelled. Non-positive values disable rate limiting.
func OptionRateLimit(rps float64, burst int) Option {
	return optionRateLimit{rps: rps, burst: burst}
}

type optionCookieJar struct {
	jar *cookiejar.Jar
}

func (o optionCookieJar) Apply(target interface{}) {
	if client, ok := target.(*chttp.Client); ok {
		client.Jar = o.jar
	}
}

func (optionCookieJar) String() string { return "[CookieJar]" }

// OptionCookieJar replaces the client's private cookie jar. A nil jar
// disables cookie handling entirely. Sharing one jar between clients shares
// their sessions.
func OptionCookieJar(jar *cookiejar.Jar) Option {
	return optionCookieJar{jar: jar}
}
