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

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gitlab.com/flimzy/httpe"
)

// GetHead automatically route undefined HEAD requests to GET handlers, and
// discards the response body for such requests.
//
// Forked from chi middleware package.
func GetHead(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			rctx := chi.RouteContext(r.Context())
			routePath := rctx.RoutePath
			if routePath == "" {
				if r.URL.RawPath != "" {
					routePath = r.URL.RawPath
				} else {
					routePath = r.URL.Path
				}
			}

			tctx := chi.NewRouteContext()
			if !rctx.Routes.Match(tctx, http.MethodHead, routePath) {
				type httpWriter interface {
					Header() http.Header
					WriteHeader(statusCode int)
				}
				discardWriter := struct {
					httpWriter
					io.Writer
				}{
					httpWriter: w,
					Writer:     io.Discard,
				}
				rctx.RouteMethod = http.MethodGet
				rctx.RoutePath = routePath
				next.ServeHTTP(discardWriter, r)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

type userContextKey struct{}

type userCtx struct {
	Name          *string  `json:"name"`
	Roles         []string `json:"roles"`
	authenticated string
}

func userFromContext(ctx context.Context) *userCtx {
	if u, ok := ctx.Value(userContextKey{}).(*userCtx); ok {
		return u
	}
	return &userCtx{Roles: []string{}}
}

// identify returns the user authenticated by the request, by Basic Auth or by
// session cookie. Invalid Basic Auth credentials are an error. An unknown
// session cookie is ignored.
func (s *Server) identify(r *http.Request) (*userCtx, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if name, password, ok := r.BasicAuth(); ok {
		u, found := s.users[name]
		if !found || u.password != password {
			return nil, errBadLogin
		}
		return &userCtx{Name: &name, Roles: u.roles, authenticated: "default"}, nil
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if name, ok := s.sessions[cookie.Value]; ok {
			if u, found := s.users[name]; found {
				return &userCtx{Name: &name, Roles: u.roles, authenticated: "cookie"}, nil
			}
		}
	}
	return nil, nil
}

func (s *Server) authMiddleware(next httpe.HandlerWithError) httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		u, err := s.identify(r)
		if err != nil {
			return err
		}
		if u == nil {
			if s.requireAuth {
				return errUnauthorized
			}
			return next.ServeHTTPWithError(w, r)
		}
		ctx := context.WithValue(r.Context(), userContextKey{}, u)
		return next.ServeHTTPWithError(w, r.WithContext(ctx))
	})
}
