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
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// Session represents an authentication session.
type Session struct {
	// Name is the name of the authenticated user.
	Name string
	// Roles is a list of roles the user belongs to.
	Roles []string
	// AuthenticationMethod is the authentication method that was used for this
	// session.
	AuthenticationMethod string
	// AuthenticationDB is the user database against which authentication was
	// performed.
	AuthenticationDB string
	// AuthenticationHandlers is a list of authentication handlers configured on
	// the server.
	AuthenticationHandlers []string
	// RawResponse is the raw JSON response sent by the server.
	RawResponse json.RawMessage
}

type session struct {
	Data    json.RawMessage
	Info    authInfo    `json:"info"`
	UserCtx userContext `json:"userCtx"`
}

type authInfo struct {
	AuthenticationMethod   string   `json:"authenticated"`
	AuthenticationDB       string   `json:"authentication_db"`
	AuthenticationHandlers []string `json:"authentication_handlers"`
}

type userContext struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

func (s *session) UnmarshalJSON(data []byte) error {
	type alias session
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = session(a)
	s.Data = data
	return nil
}

const sessionPath = "_session"

// Session returns information about the currently authenticated user.
func (c *Client) Session(ctx context.Context) (*Session, error) {
	s := &session{}
	if err := c.Path(sessionPath).DoJSON(ctx, nil, s); err != nil {
		return nil, err
	}
	return &Session{
		RawResponse:            s.Data,
		Name:                   s.UserCtx.Name,
		Roles:                  s.UserCtx.Roles,
		AuthenticationMethod:   s.Info.AuthenticationMethod,
		AuthenticationDB:       s.Info.AuthenticationDB,
		AuthenticationHandlers: s.Info.AuthenticationHandlers,
	}, nil
}

// Login initiates a cookie session with the server, with the given
// credentials. The session cookie is stored in the client's cookie jar, and
// sent with all subsequent requests.
func (c *Client) Login(ctx context.Context, name, password string) error {
	_, err := c.Path(sessionPath).Do(ctx, &Options{
		Method: http.MethodPost,
		Header: http.Header{
			"Content-Type": {"application/x-www-form-urlencoded; charset=utf-8"},
		},
		Body: url.Values{
			"name":     {name},
			"password": {password},
		},
	})
	if err != nil {
		return err
	}
	jar := c.Jar()
	if jar == nil {
		return nil
	}
	if jar.Cookie(c.sessionURL(), SessionCookieName) == nil {
		return &Error{Status: http.StatusBadGateway, Err: errors.New("minicouch: no session cookie received")}
	}
	return nil
}

// Logout ends the current cookie session, and removes the session cookie
// from the client's cookie jar.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.Path(sessionPath).Do(ctx, &Options{Method: http.MethodDelete})
	if jar := c.Jar(); jar != nil {
		jar.SetCookieHeaders(c.sessionURL(), []string{SessionCookieName + "=; Max-Age=0; Path=/"})
	}
	return err
}

func (c *Client) sessionURL() *url.URL {
	u := c.client.URL()
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + sessionPath
	u.RawPath = ""
	return u
}
