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
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-kivik/minicouch"
	"github.com/go-kivik/minicouch/cmd/minicouch/errors"
)

type login struct {
	*root
	user     string
	password string
}

func loginCmd(r *root) *cobra.Command {
	c := &login{
		root: r,
	}
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Start a cookie session",
		Long: `Authenticate against /_session, and print the resulting session, including
the session cookie. Pass the cookie to later commands with -H "Cookie: ...".

Credentials default to those in the server URL.`,
		Args: cobra.NoArgs,
		RunE: c.RunE,
	}
	pf := cmd.Flags()
	pf.StringVarP(&c.user, "user", "u", "", "User name")
	pf.StringVarP(&c.password, "password", "p", "", "Password")
	return cmd
}

func (c *login) RunE(cmd *cobra.Command, _ []string) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	user, password := c.user, c.password
	if user == "" {
		u := dsnURL(client)
		if u.User == nil {
			return errors.Code(errors.ErrUsage, "user name required")
		}
		user = u.User.Username()
		password, _ = u.User.Password()
	}
	c.log.Debugf("[login] Logging in as %q", user)
	return c.retry(func() error {
		if err := client.Login(cmd.Context(), user, password); err != nil {
			return err
		}
		sess, err := client.Session(cmd.Context())
		if err != nil {
			return err
		}
		return c.fmt.Output(cmd.OutOrStdout(), map[string]interface{}{
			"ok":     true,
			"name":   sess.Name,
			"roles":  stringsToJSON(sess.Roles),
			"cookie": sessionCookie(client),
		})
	})
}

// sessionCookie returns the session cookie, as a Cookie header value.
func sessionCookie(client *minicouch.Client) string {
	jar := client.Jar()
	if jar == nil {
		return ""
	}
	for _, cookie := range jar.All() {
		if cookie.Name == minicouch.SessionCookieName {
			return cookie.String()
		}
	}
	return ""
}

func stringsToJSON(s []string) []interface{} {
	out := make([]interface{}, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

type logout struct {
	*root
	cookie string
}

func logoutCmd(r *root) *cobra.Command {
	c := &logout{
		root: r,
	}
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "End a cookie session",
		Args:  cobra.NoArgs,
		RunE:  c.RunE,
	}
	cmd.Flags().StringVar(&c.cookie, "cookie", "", "Session cookie to end, as printed by login")
	return cmd
}

func (c *logout) RunE(cmd *cobra.Command, _ []string) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	if c.cookie != "" {
		u := dsnURL(client)
		cookie := c.cookie
		if !strings.Contains(cookie, "=") {
			cookie = minicouch.SessionCookieName + "=" + cookie
		}
		client.Jar().SetCookieHeaders(u, []string{cookie + "; Path=/"})
	}
	return c.retry(func() error {
		if err := client.Logout(cmd.Context()); err != nil {
			return err
		}
		return c.fmt.Output(cmd.OutOrStdout(), map[string]interface{}{"ok": true})
	})
}

type session struct {
	*root
}

func sessionCmd(r *root) *cobra.Command {
	c := &session{
		root: r,
	}
	return &cobra.Command{
		Use:   "session",
		Short: "Print the current session",
		Long:  "Print the session for the configured credentials, as reported by /_session",
		Args:  cobra.NoArgs,
		RunE:  c.RunE,
	}
}

func (c *session) RunE(cmd *cobra.Command, _ []string) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	return c.retry(func() error {
		sess, err := client.Session(cmd.Context())
		if err != nil {
			return err
		}
		var v interface{}
		if err := json.Unmarshal(sess.RawResponse, &v); err != nil {
			return errors.Code(errors.ErrProtocol, err)
		}
		return c.fmt.Output(cmd.OutOrStdout(), v)
	})
}
