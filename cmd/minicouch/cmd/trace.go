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


package cmd

import (
	"bytes"
	"net/http"
	"net/http/httputil"

	"github.com/go-kivik/minicouch/chttp"
)

func (r *root) clientTrace() *chttp.ClientTrace {
	r.trace = &chttp.ClientTrace{}
	return r.trace
}

func (r *root) setTrace() {
	if r.verbose {
		r.trace.HTTPRequestBody = r.traceHTTPRequestBody
		r.trace.HTTPResponseBody = r.traceHTTPResponseBody
		return
	}
	r.trace.HTTPResponse = r.traceStatus
}

// traceStatus logs the response status in debug mode.
func (r *root) traceStatus(resp *http.Response) {
	if resp.Request == nil {
		return
	}
	r.log.Debugf("[%s] %s: %s", resp.Request.Method, resp.Request.URL.Redacted(), resp.Status)
}

func (r *root) traceHTTPRequestBody(req *http.Request) {
	dump, _ := httputil.DumpRequestOut(req, true)
	r.dump("> ", dump)
}

func (r *root) traceHTTPResponseBody(resp *http.Response) {
	dump, _ := httputil.DumpResponse(resp, true)
	r.dump("< ", dump)
}

func (r *root) dump(prefix string, dump []byte) {
	for _, line := range bytes.Split(dump, []byte("\n")) {
		if line = bytes.TrimRight(line, "\r"); len(line) > 0 {
			r.log.Infof("%s%s", prefix, line)
		}
	}
}
