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

package couchtest

// Option is a server option.
type Option interface {
	apply(*Server)
}

type userOption struct {
	name     string
	password string
	roles    []string
}

func (o userOption) apply(s *Server) {
	roles := o.roles
	if roles == nil {
		roles = []string{}
	}
	s.users[o.name] = &user{password: o.password, roles: roles}
}

// WithUser adds a user to the server, who may authenticate with HTTP Basic
// Auth, or by creating a cookie session. May be specified more than once.
func WithUser(name, password string, roles ...string) Option {
	return userOption{name: name, password: password, roles: roles}
}

type requireAuthOption struct{}

func (requireAuthOption) apply(s *Server) {
	s.requireAuth = true
}

// WithRequireAuth rejects unauthenticated requests to anything but the server
// root and /_session. Without it, the server is an admin party.
func WithRequireAuth() Option {
	return requireAuthOption{}
}
