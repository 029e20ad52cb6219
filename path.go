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
	"strings"

	"github.com/go-kivik/minicouch/chttp"
)

// Path is an immutable, partially built request path. Deriving a new Path
// never alters its parent, so a Path may be shared and extended freely.
//
// The zero value is the root path, which is not bound to any client.
type Path struct {
	client *Client
	// prefix always ends in a slash, unless empty.
	prefix string
}

func (p Path) base() string {
	if p.prefix == "" {
		return "/"
	}
	return p.prefix
}

// WithSegment returns a new Path with name, percent-encoded, appended.
func (p Path) WithSegment(name string) Path {
	return Path{
		client: p.client,
		prefix: p.base() + chttp.EncodeSegment(name) + "/",
	}
}

// WithSegments is a shortcut for calling WithSegment for each name in turn.
func (p Path) WithSegments(names ...string) Path {
	for _, name := range names {
		p = p.WithSegment(name)
	}
	return p
}

// Finalize returns the path without its trailing slash. If override is not
// empty, it is appended verbatim, after a slash. The root path finalizes to
// "/".
func (p Path) Finalize(override string) string {
	path := strings.TrimSuffix(p.base(), "/")
	if override != "" {
		return path + "/" + override
	}
	if path == "" {
		return "/"
	}
	return path
}

// String returns the finalized path.
func (p Path) String() string {
	return p.Finalize("")
}
