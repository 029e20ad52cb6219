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

// Package chttp provides the minimal HTTP request pipeline used by minicouch
// to talk to CouchDB servers.
package chttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"net/url"
	"runtime"
	"strings"

	"github.com/go-kivik/minicouch/cookiejar"
	"github.com/go-kivik/minicouch/internal"
	"github.com/go-kivik/minicouch/multipart"
)

const (
	typeJSON = "application/json"
	typeForm = "application/x-www-form-urlencoded"
)

// The default UserAgent values
const (
	UserAgent = "minicouch"
	Version   = "0.1.0"
)

// Client represents a client connection. It embeds an *http.Client.
type Client struct {
	// UserAgents is appended to set the User-Agent header. Typically it should
	// contain pairs of product name and version.
	UserAgents []string

	// Jar stores session cookies. Every request consults it for a Cookie
	// header, and every response's Set-Cookie headers are stored in it. A nil
	// Jar disables cookie handling.
	Jar *cookiejar.Jar

	// Trace is used for requests whose context carries no ClientTrace.
	Trace *ClientTrace

	*http.Client

	rawDSN   string
	dsn      *url.URL
	basePath string
	auth     *basicAuth
}

// New returns a connection to a remote CouchDB server. Credentials included
// in the URL are sent as HTTP Basic Auth with every request, and stripped
// from the request URL itself.
//
// A username without a password sends no Authorization header.
//
// client is copied, so that later changes made through the returned Client
// do not affect it. Its Jar, if any, is ignored in favor of Client.Jar, which
// also sees the Set-Cookie headers of any redirect responses.
func New(client *http.Client, dsn string) (*Client, error) {
	dsnURL, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{}
	}
	hc := *client
	hc.Jar = nil
	next := hc.CheckRedirect
	user := dsnURL.User
	dsnURL.User = nil
	c := &Client{
		Client:   &hc,
		Jar:      cookiejar.New(nil),
		dsn:      dsnURL,
		basePath: strings.TrimSuffix(dsnURL.Path, "/"),
		rawDSN:   dsn,
	}
	hc.CheckRedirect = c.checkRedirect(next)
	if user != nil {
		if password, ok := user.Password(); ok && user.Username() != "" && password != "" {
			c.auth = &basicAuth{
				Username: user.Username(),
				Password: password,
			}
		}
	}
	return c, nil
}

func parseDSN(dsn string) (*url.URL, error) {
	if dsn == "" {
		return nil, &internal.Error{
			Status: http.StatusBadRequest,
			Err:    errors.New("no URL specified"),
		}
	}
	if !strings.HasPrefix(dsn, "http://") && !strings.HasPrefix(dsn, "https://") {
		dsn = "http://" + dsn
	}
	dsnURL, err := url.Parse(dsn)
	if err != nil {
		return nil, &internal.Error{Status: http.StatusBadRequest, Err: err}
	}
	if dsnURL.Path == "" {
		dsnURL.Path = "/"
	}
	return dsnURL, nil
}

// DSN returns the unparsed DSN used to connect.
func (c *Client) DSN() string {
	return c.rawDSN
}

// URL returns a copy of the base URL, without credentials.
func (c *Client) URL() *url.URL {
	u := *c.dsn
	return &u
}

// DecodeJSON unmarshals the response body into i. This method consumes and
// closes the response body.
func DecodeJSON(r *http.Response, i interface{}) error {
	defer CloseBody(r.Body)
	if err := json.NewDecoder(r.Body).Decode(i); err != nil {
		return &internal.Error{Status: http.StatusBadGateway, Err: err}
	}
	return nil
}

// CloseBody drains and closes body, so that the underlying connection may be
// reused. It is safe to call with a nil body.
func CloseBody(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

// DoJSON combines [Client.DoReq], [ResponseError], and [DecodeJSON], and
// closes the response body.
func (c *Client) DoJSON(ctx context.Context, method, path string, opts *Options, i interface{}) error {
	res, err := c.DoReq(ctx, method, path, opts)
	if err != nil {
		return err
	}
	if res.Body != nil {
		defer CloseBody(res.Body)
	}
	if err = ResponseError(res); err != nil {
		return err
	}
	return DecodeJSON(res, i)
}

func (c *Client) path(path string) string {
	if c.basePath != "" {
		return c.basePath + "/" + strings.TrimPrefix(path, "/")
	}
	return "/" + strings.TrimPrefix(path, "/")
}

// resolve returns the absolute URL for path, which must already be escaped.
// Escaped characters, such as %2F, are preserved as given.
func (c *Client) resolve(path string) (*url.URL, error) {
	rawPath, rawQuery, _ := strings.Cut(c.path(path), "?")
	unescaped, err := url.PathUnescape(rawPath)
	if err != nil {
		return nil, &internal.Error{Status: http.StatusBadRequest, Err: err}
	}
	u := *c.dsn // Make a copy
	u.Path = unescaped
	u.RawPath = rawPath
	u.RawQuery = rawQuery
	u.Fragment = ""
	return &u, nil
}

// NewRequest returns a new *http.Request to the CouchDB server, and the
// specified path. path is relative to the base URL, and must already be
// escaped. It may include a query string.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	u, err := c.resolve(path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, &internal.Error{Status: http.StatusBadRequest, Err: err}
	}
	req.URL = u
	return req, nil
}

// DoReq does an HTTP request. An error is returned only if there was an error
// processing the request. In particular, an error status code, such as 400
// or 500, does _not_ cause an error to be returned. Transport errors are
// returned exactly as reported by the underlying *http.Client.
func (c *Client) DoReq(ctx context.Context, method, path string, opts *Options) (*http.Response, error) {
	if method == "" {
		return nil, errors.New("chttp: method required")
	}
	if opts == nil {
		opts = &Options{}
	}
	header := c.header(opts.Header)
	var body io.Reader
	switch {
	case len(opts.Parts) > 0 && opts.Body != nil:
		return nil, &internal.Error{Status: http.StatusBadRequest, Message: "chttp: Body and Parts are mutually exclusive"}
	case len(opts.Parts) > 0:
		msg := multipart.New(opts.Parts...)
		header.Set("Content-Type", msg.ContentType())
		body = msg.Reader()
	default:
		var err error
		body, err = EncodeBody(opts.Body, header.Get("Content-Type"))
		if err != nil {
			return nil, err
		}
	}
	query, err := EncodeQuery(opts.Query)
	if err != nil {
		return nil, err
	}
	req, err := c.NewRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	req.Header = header
	setQuery(req, query)
	req = c.attachCookies(req)

	trace := ContextClientTrace(ctx)
	if trace == nil {
		trace = c.Trace
	}
	if trace != nil {
		trace.httpRequest(req)
		trace.httpRequestBody(req)
	}

	response, err := c.Do(req)
	if response != nil {
		c.ingestCookies(req.URL, response)
	}
	if trace != nil {
		trace.httpResponse(response)
		trace.httpResponseBody(response)
	}
	return response, err
}

// header returns the default request headers, merged field by field with
// override. A key present in override with no values removes the default.
func (c *Client) header(override http.Header) http.Header {
	h := http.Header{}
	h.Set("Content-Type", typeJSON)
	h.Set("User-Agent", c.userAgent())
	if c.auth != nil {
		h.Set("Authorization", c.auth.header())
	}
	for k, v := range override {
		key := textproto.CanonicalMIMEHeaderKey(k)
		if len(v) == 0 {
			delete(h, key)
			continue
		}
		h[key] = append([]string(nil), v...)
	}
	return h
}

func setQuery(req *http.Request, query string) {
	if query == "" {
		return
	}
	if req.URL.RawQuery == "" {
		req.URL.RawQuery = query
		return
	}
	req.URL.RawQuery = strings.Join([]string{req.URL.RawQuery, query}, "&")
}

// jarCookiesKey marks a request whose Cookie header is managed by the jar.
type jarCookiesKey struct{}

// attachCookies sets the Cookie header from the jar, unless the caller
// already supplied one.
func (c *Client) attachCookies(req *http.Request) *http.Request {
	if c.Jar == nil {
		return req
	}
	if _, ok := req.Header["Cookie"]; ok {
		return req
	}
	req = req.WithContext(context.WithValue(req.Context(), jarCookiesKey{}, true))
	if cookie := c.Jar.CookieHeader(req.URL); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	return req
}

const maxRedirects = 10

// checkRedirect wraps next, so that each redirect response's cookies are
// stored, and the redirected request carries the jar's cookies for its own
// URL. A nil next follows up to 10 redirects, as net/http does.
func (c *Client) checkRedirect(next func(*http.Request, []*http.Request) error) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if next != nil {
			if err := next(req, via); err != nil {
				return err
			}
		} else if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		if c.Jar == nil {
			return nil
		}
		if req.Response != nil {
			c.ingestCookies(via[len(via)-1].URL, req.Response)
		}
		if managed, _ := req.Context().Value(jarCookiesKey{}).(bool); managed {
			req.Header.Del("Cookie")
			if cookie := c.Jar.CookieHeader(req.URL); cookie != "" {
				req.Header.Set("Cookie", cookie)
			}
		}
		return nil
	}
}

// ingestCookies stores the response's Set-Cookie headers in the jar, against
// the URL of the request which produced the response.
func (c *Client) ingestCookies(u *url.URL, res *http.Response) {
	if c.Jar == nil {
		return
	}
	if res.Request != nil && res.Request.URL != nil {
		u = res.Request.URL
	}
	c.Jar.SetCookieHeaders(u, res.Header.Values("Set-Cookie"))
}

func (c *Client) userAgent() string {
	ua := fmt.Sprintf("%s/%s (Language=%s; Platform=%s/%s)",
		UserAgent, Version, runtime.Version(), runtime.GOARCH, runtime.GOOS)
	return strings.Join(append([]string{ua}, c.UserAgents...), " ")
}
