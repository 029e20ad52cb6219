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
	"errors"
	"io"
)

const streamChunkSize = 32 * 1024

var errStreamClosed = errors.New("minicouch: stream closed")

// Stream is a lazily read response body. Each call to Next blocks until more
// of the body arrives, or the body ends. A Stream cannot be restarted. The
// underlying connection is held until the body has been read to the end, or
// Close is called.
//
// A Stream also satisfies io.ReadCloser. Next and Read draw from the same
// body, and should not be mixed carelessly. A Stream is not safe for
// concurrent use. To abandon a blocked read, cancel the request's context.
type Stream struct {
	body io.ReadCloser
	buf  []byte
	err  error
}

var _ io.ReadCloser = &Stream{}

func newStream(body io.ReadCloser) *Stream {
	if body == nil {
		body = io.NopCloser(eofReader{})
	}
	return &Stream{body: body}
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

// Next returns the next chunk of the body, as soon as any bytes are
// available. At the end of the body, it returns nil and io.EOF, and the body
// is closed. Any other error is also final.
func (s *Stream) Next() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.buf == nil {
		s.buf = make([]byte, streamChunkSize)
	}
	for {
		n, err := s.body.Read(s.buf)
		if err != nil {
			s.finish(err)
		}
		if n > 0 {
			return append([]byte(nil), s.buf[:n]...), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// Read satisfies the io.Reader interface.
func (s *Stream) Read(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	n, err := s.body.Read(p)
	if err != nil {
		s.finish(err)
	}
	return n, err
}

// Close abandons the rest of the body, and releases the connection. It is
// safe to call Close more than once.
func (s *Stream) Close() error {
	if s.err != nil {
		return nil
	}
	s.err = errStreamClosed
	return s.body.Close()
}

func (s *Stream) finish(err error) {
	s.err = err
	_ = s.body.Close()
}
