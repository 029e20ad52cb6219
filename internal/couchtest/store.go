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

package couchtest

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
)

var validDBName = regexp.MustCompile(`^[a-z][a-z0-9_$()+/-]*$`)

type database struct {
	name string
	seq  int
	docs map[string]*document
}

type document struct {
	id          string
	rev         string
	deleted     bool
	fields      map[string]json.RawMessage
	attachments map[string]*attachment
}

type attachment struct {
	ContentType string `json:"content_type"`
	Digest      string `json:"digest"`
	Length      int    `json:"length"`
	Stub        bool   `json:"stub,omitempty"`
	Data        []byte `json:"data,omitempty"`
}

func newAttachment(contentType string, data []byte) *attachment {
	sum := md5.Sum(data)
	return &attachment{
		ContentType: contentType,
		Digest:      "md5-" + base64.StdEncoding.EncodeToString(sum[:]),
		Length:      len(data),
		Data:        data,
	}
}

func newDatabase(name string) *database {
	return &database{
		name: name,
		docs: map[string]*document{},
	}
}

func (d *database) docCount() (live, deleted int) {
	for _, doc := range d.docs {
		if doc.deleted {
			deleted++
			continue
		}
		live++
	}
	return live, deleted
}

// get returns the live document with the given ID, or nil.
func (d *database) get(id string) *document {
	doc, ok := d.docs[id]
	if !ok || doc.deleted {
		return nil
	}
	return doc
}

// liveIDs returns the IDs of all live documents, in byte order.
func (d *database) liveIDs() []string {
	ids := make([]string, 0, len(d.docs))
	for id, doc := range d.docs {
		if !doc.deleted {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// checkRev returns errConflict unless rev matches the current revision of the
// document with the given ID. A missing or deleted document matches an empty
// rev.
func (d *database) checkRev(id, rev string) error {
	current := d.get(id)
	if current == nil {
		if rev != "" {
			return errConflict
		}
		return nil
	}
	if rev != current.rev {
		return errConflict
	}
	return nil
}

// store saves doc as the new revision of its ID, and returns the new rev.
func (d *database) store(doc *document) string {
	gen := 1
	if prev, ok := d.docs[doc.id]; ok {
		gen = revGeneration(prev.rev) + 1
	}
	doc.rev = newRev(gen)
	d.docs[doc.id] = doc
	d.seq++
	return doc.rev
}

func newRev(gen int) string {
	return fmt.Sprintf("%d-%s", gen, strings.ReplaceAll(uuid.NewString(), "-", ""))
}

func revGeneration(rev string) int {
	var gen int
	_, _ = fmt.Sscanf(rev, "%d-", &gen)
	return gen
}

// render returns the JSON representation of the document. When
// includeAttachments is false, attachments are rendered as stubs.
func (d *document) render(includeAttachments bool) map[string]interface{} {
	out := make(map[string]interface{}, len(d.fields)+3)
	for k, v := range d.fields {
		out[k] = v
	}
	out["_id"] = d.id
	out["_rev"] = d.rev
	if len(d.attachments) > 0 {
		atts := make(map[string]*attachment, len(d.attachments))
		for name, att := range d.attachments {
			rendered := *att
			if !includeAttachments {
				rendered.Data = nil
				rendered.Stub = true
			}
			atts[name] = &rendered
		}
		out["_attachments"] = atts
	}
	return out
}

// fieldValue returns the decoded value of the top-level field, and whether it
// exists.
func (d *document) fieldValue(name string) (interface{}, bool) {
	raw, ok := d.fields[name]
	if !ok {
		return nil, false
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return v, true
}

// parseDocument splits a JSON document body into its user fields and the
// special fields the server interprets.
func parseDocument(body []byte) (fields map[string]json.RawMessage, special map[string]json.RawMessage, err error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(body, &all); err != nil {
		return nil, nil, badRequest("Document must be a JSON object")
	}
	if all == nil {
		return nil, nil, badRequest("Document must be a JSON object")
	}
	fields = make(map[string]json.RawMessage, len(all))
	special = map[string]json.RawMessage{}
	for k, v := range all {
		if strings.HasPrefix(k, "_") {
			special[k] = v
			continue
		}
		fields[k] = v
	}
	for k := range special {
		switch k {
		case "_id", "_rev", "_deleted", "_attachments":
		default:
			return nil, nil, badRequest(fmt.Sprintf("Bad special document member: %s", k))
		}
	}
	return fields, special, nil
}

func stringField(special map[string]json.RawMessage, key string) string {
	var s string
	if raw, ok := special[key]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

func boolField(special map[string]json.RawMessage, key string) bool {
	var b bool
	if raw, ok := special[key]; ok {
		_ = json.Unmarshal(raw, &b)
	}
	return b
}
