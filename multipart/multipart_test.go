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

package multipart

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"gitlab.com/flimzy/testy"
)

func TestNewWithBoundary(t *testing.T) {
	type tt struct {
		parts    []Part
		expected string
	}

	tests := testy.NewTable()
	tests.Add("no parts", tt{
		expected: "--xyz--\r\n",
	})
	tests.Add("one part", tt{
		parts: []Part{
			{ContentType: "application/json", Data: []byte(`{"_id":"foo"}`)},
		},
		expected: "--xyz\r\n" +
			"content-type: application/json\r\n" +
			"content-length: 13\r\n" +
			"\r\n" +
			`{"_id":"foo"}` + "\r\n" +
			"--xyz--\r\n",
	})
	tests.Add("two parts", tt{
		parts: []Part{
			{ContentType: "application/json", Data: []byte(`{}`)},
			{ContentType: "text/plain", Data: []byte("hello")},
		},
		expected: "--xyz\r\n" +
			"content-type: application/json\r\n" +
			"content-length: 2\r\n" +
			"\r\n" +
			"{}\r\n" +
			"--xyz\r\n" +
			"content-type: text/plain\r\n" +
			"content-length: 5\r\n" +
			"\r\n" +
			"hello\r\n" +
			"--xyz--\r\n",
	})
	tests.Add("declared length ignored", tt{
		parts: []Part{
			{ContentType: "text/plain", Data: []byte("abc"), Length: 9000},
		},
		expected: "--xyz\r\n" +
			"content-type: text/plain\r\n" +
			"content-length: 3\r\n" +
			"\r\n" +
			"abc\r\n" +
			"--xyz--\r\n",
	})
	tests.Add("empty part", tt{
		parts: []Part{
			{ContentType: "application/octet-stream"},
		},
		expected: "--xyz\r\n" +
			"content-type: application/octet-stream\r\n" +
			"content-length: 0\r\n" +
			"\r\n" +
			"\r\n" +
			"--xyz--\r\n",
	})

	tests.Run(t, func(t *testing.T, tt tt) {
		msg := NewWithBoundary("xyz", tt.parts...)
		if d := testy.DiffText(tt.expected, string(msg.Bytes())); d != nil {
			t.Error(d)
		}
		if msg.Len() != int64(len(tt.expected)) {
			t.Errorf("Unexpected length %d, want %d", msg.Len(), len(tt.expected))
		}
		if ct := msg.ContentType(); ct != "multipart/related; boundary=xyz" {
			t.Errorf("Unexpected content type: %s", ct)
		}
	})
}

func TestLen(t *testing.T) {
	l1, l2 := 1000, 37
	parts := []Part{
		{ContentType: "image/png", Data: []byte(strings.Repeat("x", l1))},
		{ContentType: "text/plain", Data: []byte(strings.Repeat("y", l2))},
	}
	msg := New(parts...)
	b := msg.Boundary()
	framing := 0
	for _, p := range parts {
		framing += len("--"+b+"\r\n") +
			len("content-type: "+p.ContentType+"\r\n") +
			len("content-length: "+strconv.Itoa(len(p.Data))+"\r\n") +
			len("\r\n") + len("\r\n")
	}
	terminal := len("--" + b + "--\r\n")
	if want := int64(framing + l1 + l2 + terminal); msg.Len() != want {
		t.Errorf("Unexpected length %d, want %d", msg.Len(), want)
	}
}

func TestBoundary(t *testing.T) {
	re := regexp.MustCompile(`^[0-9a-f]{32}$`)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		b := New().Boundary()
		if !re.MatchString(b) {
			t.Fatalf("Unexpected boundary format: %q", b)
		}
		if seen[b] {
			t.Fatalf("Duplicate boundary: %s", b)
		}
		seen[b] = true
	}
}

func TestRoundTrip(t *testing.T) {
	parts := []Part{
		{ContentType: "application/json", Data: []byte(`{"_id":"foo","_attachments":{"foo.txt":{"follows":true}}}`)},
		{ContentType: "application/octet-stream", Data: []byte{0, 1, 2, '\r', '\n', 0xff}},
	}
	msg := New(parts...)
	mediaType, params, err := mime.ParseMediaType(msg.ContentType())
	if err != nil {
		t.Fatal(err)
	}
	if mediaType != "multipart/related" {
		t.Errorf("Unexpected media type: %s", mediaType)
	}
	r := multipart.NewReader(msg.Reader(), params["boundary"])
	for i, want := range parts {
		p, err := r.NextPart()
		if err != nil {
			t.Fatalf("part %d: %s", i, err)
		}
		if ct := p.Header.Get("Content-Type"); ct != want.ContentType {
			t.Errorf("part %d: unexpected content type %q", i, ct)
		}
		if cl := p.Header.Get("Content-Length"); cl != strconv.Itoa(len(want.Data)) {
			t.Errorf("part %d: unexpected content length %q", i, cl)
		}
		got, err := io.ReadAll(p)
		if err != nil {
			t.Fatal(err)
		}
		if d := testy.DiffInterface(want.Data, got); d != nil {
			t.Errorf("part %d: %s", i, d)
		}
	}
	if _, err := r.NextPart(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected EOF after last part, got %v", err)
	}
}

func TestBytesIsCopy(t *testing.T) {
	msg := NewWithBoundary("b", Part{ContentType: "text/plain", Data: []byte("a")})
	b := msg.Bytes()
	b[0] = 'X'
	if got := msg.Bytes()[0]; got != '-' {
		t.Errorf("Message was mutated through Bytes: %q", got)
	}
}

func TestReadPart(t *testing.T) {
	p, err := ReadPart("text/plain", strings.NewReader("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if string(p.Data) != "hello" || p.Length != 5 || p.ContentType != "text/plain" {
		t.Errorf("Unexpected part: %+v", p)
	}
}
