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

package cookiejar

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Parse parses a single raw Set-Cookie header value, issued in response to a
// request for u at time now. Unknown or malformed attributes are ignored. The
// second return value is false when the leading name=value pair is unusable.
//
// A cookie whose Max-Age is zero or negative, or whose Expires is in the
// past, is returned with an expiry at or before now. Storing such a cookie
// removes any stored cookie with the same key.
func Parse(raw string, u *url.URL, now time.Time) (*Cookie, bool) {
	return parse(raw, u, now, nil)
}

func parse(raw string, u *url.URL, now time.Time, psl PublicSuffixList) (*Cookie, bool) {
	parts := strings.Split(raw, ";")
	name, value, ok := strings.Cut(parts[0], "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return nil, false
	}
	var host string
	if u != nil {
		host = canonicalHost(u)
	}
	c := &Cookie{
		Name:   name,
		Value:  unquote(strings.TrimSpace(value)),
		Domain: host,
		Path:   "/",
	}

	var (
		maxAge    int64
		hasMaxAge bool
		expires   time.Time
	)
	for _, attr := range parts[1:] {
		key, val, _ := strings.Cut(attr, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.TrimSpace(val)
		switch key {
		case "domain":
			if d, ok := cookieDomain(val, host, psl); ok {
				c.Domain = d
			}
		case "path":
			if strings.HasPrefix(val, "/") {
				c.Path = val
			}
		case "max-age":
			secs, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				continue
			}
			maxAge, hasMaxAge = secs, true
		case "expires":
			if t, ok := parseExpires(val); ok {
				expires = t
			}
		case "secure":
			c.Secure = true
		case "httponly":
			c.HTTPOnly = true
		}
	}

	switch {
	case hasMaxAge && maxAge <= 0:
		c.Expires = now
	case hasMaxAge:
		c.Expires = maxAgeExpiry(now, maxAge)
	case !expires.IsZero():
		c.Expires = expires
	}
	return c, true
}

// maxAgeSeconds is the largest Max-Age that fits in a time.Duration.
const maxAgeSeconds = int64(math.MaxInt64 / time.Second)

// maxAgeExpiry returns now plus secs seconds, clamped so that very long
// lifetimes do not wrap into the past.
func maxAgeExpiry(now time.Time, secs int64) time.Time {
	if secs > maxAgeSeconds {
		secs = maxAgeSeconds
	}
	return now.Add(time.Duration(secs) * time.Second)
}

// cookieDomain validates a Domain attribute against the issuing host. The
// second return value is false if the attribute is empty, does not
// domain-match host, or names a public suffix.
func cookieDomain(attr, host string, psl PublicSuffixList) (string, bool) {
	d := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(attr), "."))
	d = strings.TrimSuffix(d, ".")
	if d == "" || host == "" {
		return "", false
	}
	if !domainMatch(host, d) {
		return "", false
	}
	if d != host && psl != nil && psl.PublicSuffix(d) == d {
		return "", false
	}
	return d, true
}

var expiresLayouts = []string{
	time.RFC1123,
	"Mon, 02-Jan-2006 15:04:05 MST",
	"Monday, 02-Jan-06 15:04:05 MST",
	time.ANSIC,
	"Mon, 02 Jan 2006 15:04:05 -0700",
}

func parseExpires(val string) (time.Time, bool) {
	val = unquote(val)
	for _, layout := range expiresLayouts {
		if t, err := time.Parse(layout, val); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func unquote(s string) string {
	if len(s) > 1 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
