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


// Package output renders responses for the terminal.
package output

import (
	"io"
	"strings"
	"sync"

	"github.com/spf13/pflag"

	"github.com/go-kivik/minicouch"
	"github.com/go-kivik/minicouch/cmd/minicouch/errors"
)

// DefaultFormat is used when --output is not given.
const DefaultFormat = "json"

// Formatter manages output formatting.
type Formatter struct {
	mu         sync.Mutex
	formats    map[string]Format
	formatOpts []string

	format string
	field  string
}

// New returns an output formatter instance.
func New() *Formatter {
	return &Formatter{
		formats: map[string]Format{},
	}
}

// Format renders a decoded JSON value.
type Format interface {
	Output(io.Writer, interface{}) error
}

// Register registers an output format.
func (f *Formatter) Register(name string, fmt Format) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.formats[name]; ok {
		panic(name + " already registered")
	}
	f.formats[name] = fmt
	f.formatOpts = append(f.formatOpts, name)
}

func (f *Formatter) options() []string {
	if len(f.formats) == 0 {
		panic("no formatters registered")
	}
	return f.formatOpts
}

// ConfigFlags sets up the CLI flags based on the registered formats.
func (f *Formatter) ConfigFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&f.format, "output", "o", DefaultFormat, "Output format. One of: "+strings.Join(f.options(), "|"))
	fs.StringVar(&f.field, "field", "", "Output only this field of a JSON response, as a dotted path such as rows.0.id")
}

func (f *Formatter) formatter() (Format, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if format, ok := f.formats[f.format]; ok {
		return format, nil
	}
	return nil, errors.Codef(errors.ErrUsage, "unrecognized output format option: %s", f.format)
}

// Output writes v to w in the selected format, after applying --field.
func (f *Formatter) Output(w io.Writer, v interface{}) error {
	format, err := f.formatter()
	if err != nil {
		return err
	}
	v, err = Extract(v, f.field)
	if err != nil {
		return err
	}
	out := ensureNewlineEnding(w)
	if err := format.Output(out, v); err != nil {
		return errors.Code(errors.ErrIO, err)
	}
	return errors.Code(errors.ErrIO, out.Close())
}

// Result writes res to w. JSON bodies and HEAD headers go through the
// selected format. Text is written as-is, and binary and streamed bodies
// byte for byte.
func (f *Formatter) Result(w io.Writer, res *minicouch.Result) error {
	switch res.Kind {
	case minicouch.KindJSON:
		return f.Output(w, res.JSON)
	case minicouch.KindHeaders:
		hdr := make(map[string]interface{}, len(res.Header))
		for k, v := range res.Header {
			hdr[k] = v
		}
		return f.Output(w, hdr)
	}
	if f.field != "" {
		return errors.Codef(errors.ErrUsage, "--field requires a JSON response, got %s", res.Kind)
	}
	switch res.Kind {
	case minicouch.KindText:
		out := ensureNewlineEnding(w)
		if _, err := io.WriteString(out, res.Text); err != nil {
			return errors.Code(errors.ErrIO, err)
		}
		return errors.Code(errors.ErrIO, out.Close())
	case minicouch.KindStream:
		defer res.Stream.Close() // nolint:errcheck
		_, err := io.Copy(w, res.Stream)
		return errors.Code(errors.ErrIO, err)
	default:
		_, err := w.Write(res.Bytes)
		return errors.Code(errors.ErrIO, err)
	}
}

func ensureNewlineEnding(w io.Writer) io.WriteCloser {
	return &addNewlineEnding{Writer: w}
}

type addNewlineEnding struct {
	io.Writer
	last byte
}

func (w *addNewlineEnding) Write(p []byte) (int, error) {
	if len(p) > 0 {
		w.last = p[len(p)-1]
	}
	return w.Writer.Write(p)
}

// Close adds a trailing newline to non-empty output which lacks one. It does
// not close the underlying writer.
func (w *addNewlineEnding) Close() error {
	if w.last != 0 && w.last != '\n' {
		_, err := w.Writer.Write([]byte{'\n'})
		return err
	}
	return nil
}
