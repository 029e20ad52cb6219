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
	"runtime"

	"github.com/spf13/cobra"

	"github.com/go-kivik/minicouch"
)

type version struct {
	*root
	server bool
}

func versionCmd(r *root) *cobra.Command {
	c := &version{
		root: r,
	}
	cmd := &cobra.Command{
		Use:     "version",
		Aliases: []string{"ver"},
		Short:   "Print client and server version information",
		Long:    "Print the client version and, with --server, the version reported by the server",
		Args:    cobra.NoArgs,
		RunE:    c.RunE,
	}
	cmd.Flags().BoolVar(&c.server, "server", false, "Also fetch the server version")
	return cmd
}

func (c *version) RunE(cmd *cobra.Command, _ []string) error {
	data := map[string]interface{}{
		"version":   minicouch.Version,
		"goVersion": runtime.Version(),
		"GOOS":      runtime.GOOS,
		"GOARCH":    runtime.GOARCH,
	}
	if !c.server {
		return c.fmt.Output(cmd.OutOrStdout(), data)
	}
	client, err := c.client()
	if err != nil {
		return err
	}
	return c.retry(func() error {
		var welcome struct {
			Version string `json:"version"`
		}
		if err := client.Root().DoJSON(cmd.Context(), nil, &welcome); err != nil {
			return err
		}
		data["serverVersion"] = welcome.Version
		return c.fmt.Output(cmd.OutOrStdout(), data)
	})
}
