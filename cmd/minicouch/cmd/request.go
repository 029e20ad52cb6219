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
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-kivik/minicouch"
	"github.com/go-kivik/minicouch/cmd/minicouch/errors"
	"github.com/go-kivik/minicouch/cmd/minicouch/input"
)

type request struct {
	*root
	method string
	input  *input.Input
	query  []string
	header []string
	raw    string
	stream bool
}

var requestDescriptions = map[string]string{
	http.MethodGet:    "Fetch a resource",
	http.MethodHead:   "Fetch the headers of a resource",
	http.MethodPut:    "Create or replace a resource",
	http.MethodPost:   "Post to a resource",
	http.MethodDelete: "Delete a resource",
}

func requestCmd(r *root, method string) *cobra.Command {
	c := &request{
		root:   r,
		method: method,
		input:  input.New(),
	}
	cmd := &cobra.Command{
		Use:   strings.ToLower(method) + " [path]",
		Short: requestDescriptions[method],
		Long: requestDescriptions[method] + `, at a path relative to the server URL.

Path segments are separated by slashes. Each segment is percent-encoded before
it is sent, so a document ID containing a slash must be given as %2F.`,
		Args: cobra.MaximumNArgs(1),
		RunE: c.RunE,
	}

	pf := cmd.Flags()
	pf.StringArrayVarP(&c.query, "query", "q", nil, "Query parameter, specified as key=value. Values which parse as JSON are sent as JSON. May be repeated.")
	pf.StringArrayVarP(&c.header, "header", "H", nil, "Request header, specified as name:value. An empty value removes a default header. May be repeated.")
	pf.StringVar(&c.raw, "raw-path", "", "Appended to the path without percent-encoding, such as _design/foo/_view/bar")
	pf.BoolVar(&c.stream, "stream", false, "Copy the response body to the output as it arrives")
	if method == http.MethodPut || method == http.MethodPost {
		c.input.ConfigFlags(pf)
	}

	return cmd
}

func (c *request) RunE(cmd *cobra.Command, args []string) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	var arg string
	if len(args) > 0 {
		arg = args[0]
	}
	segments, err := splitPath(arg)
	if err != nil {
		return err
	}
	c.input.SetStdin(cmd.InOrStdin())
	opts, err := c.options()
	if err != nil {
		return err
	}
	path := client.Path(segments...)
	c.log.Debugf("[%s] %s", c.method, path.Finalize(c.raw))

	return c.retry(func() error {
		res, err := path.Do(cmd.Context(), opts)
		if err != nil {
			return err
		}
		return c.fmt.Result(cmd.OutOrStdout(), res)
	})
}

func (c *request) options() (*minicouch.Options, error) {
	query, err := parseQuery(c.query)
	if err != nil {
		return nil, err
	}
	header, err := parseHeader(c.header)
	if err != nil {
		return nil, err
	}
	if ct := c.input.ContentType(); ct != "" {
		header.Set("Content-Type", ct)
	}
	opts := &minicouch.Options{
		Method: c.method,
		Header: header,
		Query:  query,
		Path:   c.raw,
		Stream: c.stream,
	}
	opts.Parts, err = c.input.Parts()
	if err != nil {
		return nil, err
	}
	if opts.Parts == nil {
		opts.Body, err = c.input.Body()
		if err != nil {
			return nil, err
		}
	}
	return opts, nil
}

// splitPath splits p into unescaped path segments.
func splitPath(p string) ([]string, error) {
	var segments []string
	for _, raw := range strings.Split(p, "/") {
		if raw == "" {
			continue
		}
		segment, err := url.PathUnescape(raw)
		if err != nil {
			return nil, errors.Code(errors.ErrUsage, err)
		}
		segments = append(segments, segment)
	}
	return segments, nil
}

func parseQuery(params []string) (map[string]interface{}, error) {
	if len(params) == 0 {
		return nil, nil
	}
	query := make(map[string]interface{}, len(params))
	for _, param := range params {
		key, value, ok := strings.Cut(param, "=")
		if !ok || key == "" {
			return nil, errors.Codef(errors.ErrUsage, "invalid query parameter %q, expected key=value", param)
		}
		var v interface{}
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			v = value
		}
		query[key] = v
	}
	return query, nil
}

func parseHeader(headers []string) (http.Header, error) {
	h := http.Header{}
	for _, header := range headers {
		name, value, ok := strings.Cut(header, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, errors.Codef(errors.ErrUsage, "invalid header %q, expected name:value", header)
		}
		key := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(name))
		if value = strings.TrimSpace(value); value == "" {
			h[key] = []string{}
			continue
		}
		h[key] = append(h[key], value)
	}
	return h, nil
}
