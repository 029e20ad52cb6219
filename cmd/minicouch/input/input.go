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


// Package input collects request bodies from command line flags.
package input

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/icza/dyno"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/go-kivik/minicouch/cmd/minicouch/errors"
	"github.com/go-kivik/minicouch/multipart"
)

// Input holds the body-related flags of a request command.
type Input struct {
	data        string
	yaml        bool
	contentType string
	parts       []string

	stdin io.Reader
}

// New returns a new Input.
func New() *Input {
	return &Input{}
}

// SetStdin sets the reader used for "@-".
func (i *Input) SetStdin(r io.Reader) {
	i.stdin = r
}

// ConfigFlags registers the input flags on pf.
func (i *Input) ConfigFlags(pf *pflag.FlagSet) {
	pf.StringVarP(&i.data, "data", "d", "", "Request body. Use @filename to read from a file, or @- for stdin. YAML files (.yaml, .yml) are converted to JSON.")
	pf.BoolVar(&i.yaml, "yaml", false, "Treat the request body as YAML, and convert it to JSON")
	pf.StringVar(&i.contentType, "content-type", "", "Content-Type of the request body")
	pf.StringArrayVar(&i.parts, "part", nil, "Send a multipart/related body, with this part after the JSON document. Specified as content-type=@filename. May be repeated.")
}

// HasInput reports whether a body or parts were provided.
func (i *Input) HasInput() bool {
	return i.data != "" || len(i.parts) > 0
}

// ContentType returns the --content-type flag value.
func (i *Input) ContentType() string {
	return i.contentType
}

// Body returns the request body: the raw bytes given, or, for YAML input, the
// equivalent JSON document. It returns nil when no data was given.
func (i *Input) Body() (interface{}, error) {
	if i.data == "" {
		return nil, nil
	}
	buf, filename, err := i.read(i.data)
	if err != nil {
		return nil, err
	}
	if !i.yaml && !isYAMLFile(filename) {
		return buf, nil
	}
	return yaml2json(buf)
}

// Parts returns the multipart/related parts: the JSON document from --data,
// followed by each --part. It returns nil when no --part was given.
func (i *Input) Parts() ([]multipart.Part, error) {
	if len(i.parts) == 0 {
		return nil, nil
	}
	body, err := i.Body()
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, errors.Code(errors.ErrUsage, "--part requires a JSON document in --data")
	}
	doc, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Code(errors.ErrData, err)
	}
	parts := []multipart.Part{{ContentType: "application/json", Data: doc, Length: int64(len(doc))}}
	for _, arg := range i.parts {
		ct, src, ok := strings.Cut(arg, "=")
		if !ok || ct == "" || !strings.HasPrefix(src, "@") {
			return nil, errors.Codef(errors.ErrUsage, "invalid part %q, expected content-type=@filename", arg)
		}
		data, _, err := i.read(src)
		if err != nil {
			return nil, err
		}
		part, err := multipart.ReadPart(ct, bytes.NewReader(data))
		if err != nil {
			return nil, errors.Code(errors.ErrIO, err)
		}
		parts = append(parts, part)
	}
	return parts, nil
}

// read resolves an @filename or @- reference, or returns arg itself. It
// returns the filename read, if any.
func (i *Input) read(arg string) (json.RawMessage, string, error) {
	if !strings.HasPrefix(arg, "@") {
		return json.RawMessage(arg), "", nil
	}
	filename := arg[1:]
	var r io.Reader
	if filename == "-" {
		if i.stdin == nil {
			return nil, "", errors.Code(errors.ErrNoInput, "no stdin available")
		}
		r = i.stdin
	} else {
		f, err := os.Open(filename)
		if err != nil {
			return nil, "", errors.Code(errors.ErrNoInput, err)
		}
		defer f.Close() // nolint:errcheck
		r = f
	}
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, "", errors.Code(errors.ErrNoInput, err)
	}
	return buf, filename, nil
}

func isYAMLFile(filename string) bool {
	return strings.HasSuffix(filename, ".yaml") || strings.HasSuffix(filename, ".yml")
}

func yaml2json(buf []byte) (interface{}, error) {
	var doc interface{}
	if err := yaml.Unmarshal(buf, &doc); err != nil {
		return nil, errors.Code(errors.ErrData, err)
	}
	return dyno.ConvertMapI2MapS(doc), nil
}
