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

// Package multipart builds multipart/related request bodies, as used by
// CouchDB to upload a document together with its attachments in a single
// request.
package multipart

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Part is one body part of a multipart/related message.
type Part struct {
	ContentType string
	Data        []byte
	// Length is informational only. The content-length emitted for a part is
	// always computed from Data.
	Length int64
}

// ReadPart reads r to completion and returns it as a Part.
func ReadPart(contentType string, r io.Reader) (Part, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Part{}, err
	}
	return Part{ContentType: contentType, Data: data, Length: int64(len(data))}, nil
}

// Message is an immutable, fully framed multipart/related payload.
type Message struct {
	boundary string
	body     []byte
}

// New frames parts under a freshly generated boundary.
func New(parts ...Part) *Message {
	return NewWithBoundary(newBoundary(), parts...)
}

// NewWithBoundary frames parts under the given boundary. The caller is
// responsible for choosing a boundary which appears in no part.
func NewWithBoundary(boundary string, parts ...Part) *Message {
	var buf bytes.Buffer
	for _, p := range parts {
		buf.WriteString("--" + boundary + "\r\n")
		buf.WriteString("content-type: " + p.ContentType + "\r\n")
		buf.WriteString("content-length: " + strconv.Itoa(len(p.Data)) + "\r\n")
		buf.WriteString("\r\n")
		buf.Write(p.Data)
		buf.WriteString("\r\n")
	}
	buf.WriteString("--" + boundary + "--\r\n")
	return &Message{
		boundary: boundary,
		body:     buf.Bytes(),
	}
}

func newBoundary() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Boundary returns the message's boundary token.
func (m *Message) Boundary() string {
	return m.boundary
}

// ContentType returns the value of the Content-Type header to send with the
// message.
func (m *Message) ContentType() string {
	return "multipart/related; boundary=" + m.boundary
}

// Bytes returns a copy of the framed payload.
func (m *Message) Bytes() []byte {
	return append([]byte(nil), m.body...)
}

// Len returns the length of the framed payload, in bytes.
func (m *Message) Len() int64 {
	return int64(len(m.body))
}

// Reader returns a new reader over the framed payload. Each call returns an
// independent reader.
func (m *Message) Reader() *bytes.Reader {
	return bytes.NewReader(m.body)
}
