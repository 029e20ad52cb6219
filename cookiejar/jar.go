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

// Package cookiejar provides the session cookie store used by minicouch
// clients. It parses Set-Cookie response headers, and selects the cookies to
// send with outgoing requests by domain, path, scheme and expiry.
package cookiejar

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// PublicSuffixList provides the public suffix of a domain. It is satisfied by
// golang.org/x/net/publicsuffix.List.
type PublicSuffixList interface {
	PublicSuffix(domain string) string
	String() string
}

// Options are the options for creating a new Jar.
type Options struct {
	// PublicSuffixList is consulted to reject Domain attributes which name a
	// public suffix, such as "com". Defaults to publicsuffix.List.
	PublicSuffixList PublicSuffixList

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Cookie is a single stored cookie.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
	// Expires is the absolute expiry time. The zero value denotes a session
	// cookie, which lives as long as the Jar.
	Expires  time.Time
	Secure   bool
	HTTPOnly bool
}

func (c *Cookie) expired(now time.Time) bool {
	return !c.Expires.IsZero() && !now.Before(c.Expires)
}

func (c *Cookie) sameKey(o *Cookie) bool {
	return c.Name == o.Name && c.Domain == o.Domain && c.Path == o.Path
}

// String returns the cookie's name=value pair.
func (c *Cookie) String() string {
	return c.Name + "=" + c.Value
}

// Jar is an ordered cookie store, keyed by (name, domain, path). The zero
// value is not usable; call New.
//
// Concurrent updates of the same key are last-write-wins.
type Jar struct {
	psList PublicSuffixList
	now    func() time.Time

	mu      sync.Mutex
	entries []*Cookie
}

var _ http.CookieJar = &Jar{}

// New returns a new, empty cookie jar. A nil opts is equivalent to the zero
// Options.
func New(opts *Options) *Jar {
	j := &Jar{
		psList: publicsuffix.List,
		now:    time.Now,
	}
	if opts != nil {
		if opts.PublicSuffixList != nil {
			j.psList = opts.PublicSuffixList
		}
		if opts.Now != nil {
			j.now = opts.Now
		}
	}
	return j
}

// SetCookieHeaders parses each raw Set-Cookie header value, issued in
// response to a request for u, and stores the result. Headers which cannot be
// parsed at all are skipped.
func (j *Jar) SetCookieHeaders(u *url.URL, headers []string) {
	if len(headers) == 0 {
		return
	}
	now := j.now()
	j.mu.Lock()
	defer j.mu.Unlock()
	j.prune(now)
	for _, raw := range headers {
		c, ok := parse(raw, u, now, j.psList)
		if !ok {
			continue
		}
		j.store(c, now)
	}
}

// SetCookies implements the http.CookieJar interface.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	now := j.now()
	host := canonicalHost(u)
	j.mu.Lock()
	defer j.mu.Unlock()
	j.prune(now)
	for _, hc := range cookies {
		if hc.Name == "" {
			continue
		}
		c := &Cookie{
			Name:     hc.Name,
			Value:    hc.Value,
			Domain:   host,
			Path:     "/",
			Secure:   hc.Secure,
			HTTPOnly: hc.HttpOnly,
		}
		if d, ok := cookieDomain(hc.Domain, host, j.psList); ok {
			c.Domain = d
		}
		if strings.HasPrefix(hc.Path, "/") {
			c.Path = hc.Path
		}
		switch {
		case hc.MaxAge < 0:
			c.Expires = now
		case hc.MaxAge > 0:
			c.Expires = maxAgeExpiry(now, int64(hc.MaxAge))
		case !hc.Expires.IsZero():
			c.Expires = hc.Expires
		}
		j.store(c, now)
	}
}

// store must be called with j.mu held.
func (j *Jar) store(c *Cookie, now time.Time) {
	for i, e := range j.entries {
		if !e.sameKey(c) {
			continue
		}
		if c.expired(now) {
			j.entries = append(j.entries[:i], j.entries[i+1:]...)
			return
		}
		j.entries[i] = c
		return
	}
	if c.expired(now) {
		return
	}
	j.entries = append(j.entries, c)
}

// prune drops expired entries, preserving the order of the rest. It must be
// called with j.mu held.
func (j *Jar) prune(now time.Time) {
	kept := j.entries[:0]
	for _, e := range j.entries {
		if !e.expired(now) {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(j.entries); i++ {
		j.entries[i] = nil
	}
	j.entries = kept
}

// matches returns the cookies to send to u, in storage order.
func (j *Jar) matches(u *url.URL) []*Cookie {
	if u == nil {
		return nil
	}
	now := j.now()
	host := canonicalHost(u)
	path := u.Path
	if path == "" {
		path = "/"
	}
	https := u.Scheme == "https" || u.Scheme == "wss"

	j.mu.Lock()
	defer j.mu.Unlock()
	j.prune(now)
	var found []*Cookie
	for _, c := range j.entries {
		if c.Secure && !https {
			continue
		}
		if !domainMatch(host, c.Domain) || !pathMatch(path, c.Path) {
			continue
		}
		cp := *c
		found = append(found, &cp)
	}
	return found
}

// CookieHeader returns the value of the Cookie header to send with a request
// to u, or an empty string if no stored cookie matches.
func (j *Jar) CookieHeader(u *url.URL) string {
	found := j.matches(u)
	if len(found) == 0 {
		return ""
	}
	pairs := make([]string, len(found))
	for i, c := range found {
		pairs[i] = c.String()
	}
	return strings.Join(pairs, "; ")
}

// Cookies implements the http.CookieJar interface.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	found := j.matches(u)
	if len(found) == 0 {
		return nil
	}
	cookies := make([]*http.Cookie, len(found))
	for i, c := range found {
		cookies[i] = &http.Cookie{Name: c.Name, Value: c.Value}
	}
	return cookies
}

// Cookie returns the first stored cookie named name which would be sent to
// u, or nil.
func (j *Jar) Cookie(u *url.URL, name string) *Cookie {
	for _, c := range j.matches(u) {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// All returns a copy of every unexpired cookie, in storage order.
func (j *Jar) All() []Cookie {
	now := j.now()
	j.mu.Lock()
	defer j.mu.Unlock()
	j.prune(now)
	all := make([]Cookie, len(j.entries))
	for i, c := range j.entries {
		all[i] = *c
	}
	return all
}

// Len returns the number of unexpired cookies in the jar.
func (j *Jar) Len() int {
	now := j.now()
	j.mu.Lock()
	defer j.mu.Unlock()
	j.prune(now)
	return len(j.entries)
}

func canonicalHost(u *url.URL) string {
	return strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
}

func isIP(host string) bool {
	return net.ParseIP(host) != nil
}

func domainMatch(host, domain string) bool {
	if host == domain {
		return true
	}
	if isIP(host) {
		return false
	}
	return strings.HasSuffix(host, "."+domain)
}

func pathMatch(reqPath, cookiePath string) bool {
	if reqPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(reqPath, cookiePath) {
		return false
	}
	return strings.HasSuffix(cookiePath, "/") || reqPath[len(cookiePath)] == '/'
}
