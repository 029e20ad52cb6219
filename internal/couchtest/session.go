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
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gitlab.com/flimzy/httpe"
)

const (
	sessionCookieName = "AuthSession"
	sessionTimeout    = 600 * time.Second
)

func (s *Server) getSession() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		u, err := s.identify(r)
		if err != nil {
			return err
		}
		info := map[string]interface{}{
			"authentication_handlers": []string{"cookie", "default"},
		}
		if u == nil {
			u = &userCtx{Roles: []string{}}
		} else {
			info["authenticated"] = u.authenticated
			info["authentication_db"] = "_users"
		}
		return serveJSON(w, http.StatusOK, map[string]interface{}{
			"ok":      true,
			"userCtx": u,
			"info":    info,
		})
	})
}

type credentials struct {
	Name     string `json:"name" form:"name"`
	Password string `json:"password" form:"password"`
}

func (s *Server) postSession() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		var req credentials
		if err := s.bind(r, &req); err != nil {
			return err
		}
		s.mu.Lock()
		u, ok := s.users[req.Name]
		if !ok || u.password != req.Password {
			s.mu.Unlock()
			return errBadLogin
		}
		token := strings.ReplaceAll(uuid.NewString(), "-", "")
		s.sessions[token] = req.Name
		s.mu.Unlock()

		expires := time.Now().Add(sessionTimeout).UTC().Format(http.TimeFormat)
		w.Header().Add("Set-Cookie", fmt.Sprintf("%s=%s; Version=1; Expires=%s; Max-Age=%d; Path=/; HttpOnly",
			sessionCookieName, token, expires, int(sessionTimeout.Seconds())))
		return serveJSON(w, http.StatusOK, map[string]interface{}{
			"ok":    true,
			"name":  req.Name,
			"roles": u.roles,
		})
	})
}

func (s *Server) deleteSession() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		if cookie, err := r.Cookie(sessionCookieName); err == nil {
			s.mu.Lock()
			delete(s.sessions, cookie.Value)
			s.mu.Unlock()
		}
		w.Header().Add("Set-Cookie", sessionCookieName+"=; Version=1; Path=/; HttpOnly")
		return serveJSON(w, http.StatusOK, map[string]interface{}{
			"ok": true,
		})
	})
}
