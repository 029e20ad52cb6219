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

package chttp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/ajg/form"

	"github.com/go-kivik/minicouch/internal"
)

// EncodeSegment percent-encodes a single path segment. Spaces are encoded as
// %20, and slashes as %2F, so that any string is a legal segment.
func EncodeSegment(segment string) string {
	segment = url.QueryEscape(segment)
	return strings.ReplaceAll(segment, "+", "%20")
}

// reservedKeys are the query parameters which CouchDB expects to be
// JSON-encoded.
var reservedKeys = map[string]struct{}{
	"startkey":  {},
	"endkey":    {},
	"key":       {},
	"keys":      {},
	"start_key": {},
	"end_key":   {},
}

// IsReservedKey reports whether key is a query parameter whose value must be
// JSON-encoded.
func IsReservedKey(key string) bool {
	_, ok := reservedKeys[key]
	return ok
}

// EncodeQuery encodes query as a URL query string, sorted by key.
//
// Values for the keys startkey, endkey, key, keys, start_key and end_key are
// JSON-encoded before escaping, so that "x" and x remain distinct. For other
// keys, strings are sent verbatim, and any other value is sent as its JSON
// representation, so 1 becomes 1 and true becomes true. A nil value is sent
// as null for the JSON-encoded keys, and omitted for all others.
func EncodeQuery(query map[string]interface{}) (string, error) {
	if len(query) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := query[k]
		if v == nil && !IsReservedKey(k) {
			continue
		}
		value, err := queryValue(k, v)
		if err != nil {
			return "", err
		}
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(value))
	}
	return strings.Join(parts, "&"), nil
}

func queryValue(key string, value interface{}) (string, error) {
	if str, ok := value.(string); ok && !IsReservedKey(key) {
		return str, nil
	}
	buf, err := json.Marshal(value)
	if err != nil {
		return "", &internal.Error{Status: http.StatusBadRequest, Message: fmt.Sprintf("invalid value for query parameter %q", key), Err: err}
	}
	return string(buf), nil
}

// EncodeBody returns a reader for body, encoded according to contentType.
//
// Strings, byte slices, json.RawMessage values and io.Readers are sent as-is,
// and url.Values are form-encoded. Any other value is marshaled to JSON if
// contentType is a JSON media type, or form-encoded if it is
// application/x-www-form-urlencoded. Other combinations are an error. A nil
// body returns a nil reader.
func EncodeBody(body interface{}, contentType string) (io.Reader, error) {
	switch t := body.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.NewReader(t), nil
	case []byte:
		return bytes.NewReader(t), nil
	case json.RawMessage:
		return bytes.NewReader(t), nil
	case url.Values:
		return strings.NewReader(t.Encode()), nil
	case io.Reader:
		return t, nil
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case IsJSON(mediaType):
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, &internal.Error{Status: http.StatusBadRequest, Err: err}
		}
		return bytes.NewReader(buf), nil
	case mediaType == typeForm:
		encoded, err := form.EncodeToString(body)
		if err != nil {
			return nil, &internal.Error{Status: http.StatusBadRequest, Err: err}
		}
		return strings.NewReader(encoded), nil
	}
	return nil, &internal.Error{
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("chttp: cannot encode %T body as %q", body, contentType),
	}
}

// IsJSON reports whether mediaType is application/json, or a structured
// syntax JSON type such as application/problem+json.
func IsJSON(mediaType string) bool {
	return mediaType == typeJSON || strings.HasSuffix(mediaType, "+json")
}
