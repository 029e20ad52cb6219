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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"gitlab.com/flimzy/httpe"
)

// requestRev returns the revision the request claims to update, from the rev
// query parameter or the If-Match header.
func requestRev(r *http.Request) string {
	if rev := r.URL.Query().Get("rev"); rev != "" {
		return rev
	}
	return strings.Trim(r.Header.Get("If-Match"), `"`)
}

func (s *Server) getDoc() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		id := docID(r)
		s.mu.RLock()
		defer s.mu.RUnlock()
		db, ok := s.dbs[param(r, "db")]
		if !ok {
			return errNoDB
		}
		doc, ok := db.docs[id]
		if !ok {
			return errNotFound
		}
		if doc.deleted {
			return &couchError{status: http.StatusNotFound, Err: "not_found", Reason: "deleted"}
		}
		if rev := r.URL.Query().Get("rev"); rev != "" && rev != doc.rev {
			return errNotFound
		}
		etag := strconv.Quote(doc.rev)
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return nil
		}
		includeAttachments, _ := strconv.ParseBool(r.URL.Query().Get("attachments"))
		return serveJSON(w, http.StatusOK, doc.render(includeAttachments))
	})
}

type attachmentStub struct {
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
	Follows     bool   `json:"follows"`
	Stub        bool   `json:"stub"`
}

func (s *Server) putDoc() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		defer r.Body.Close()
		id := docID(r)
		var (
			body []byte
			mr   *multipart.Reader
			err  error
		)
		ct, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if ct == "multipart/related" {
			mr = multipart.NewReader(r.Body, params["boundary"])
			part, err := mr.NextPart()
			if err != nil {
				return badRequest("invalid multipart body: " + err.Error())
			}
			body, err = io.ReadAll(part)
			if err != nil {
				return err
			}
		} else {
			if body, err = io.ReadAll(r.Body); err != nil {
				return err
			}
		}
		fields, special, err := parseDocument(body)
		if err != nil {
			return err
		}
		rev := requestRev(r)
		if bodyRev := stringField(special, "_rev"); bodyRev != "" {
			if rev != "" && rev != bodyRev {
				return badRequest("Document rev from request body and query string have different values")
			}
			rev = bodyRev
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		db, ok := s.dbs[param(r, "db")]
		if !ok {
			return errNoDB
		}
		if err := db.checkRev(id, rev); err != nil {
			return err
		}
		attachments, err := readAttachments(special["_attachments"], db.get(id), mr)
		if err != nil {
			return err
		}
		created := db.store(&document{
			id:          id,
			fields:      fields,
			deleted:     boolField(special, "_deleted"),
			attachments: attachments,
		})
		return serveRev(w, http.StatusCreated, id, created)
	})
}

// readAttachments resolves the _attachments member of a document update.
// Stubs refer to attachments of prev. Attachments marked as follows are read,
// in the order they appear in the JSON object, from the remaining parts of mr.
func readAttachments(raw json.RawMessage, prev *document, mr *multipart.Reader) (map[string]*attachment, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	names, err := orderedKeys(raw)
	if err != nil {
		return nil, badRequest("_attachments must be a JSON object")
	}
	var stubs map[string]*attachmentStub
	if err := json.Unmarshal(raw, &stubs); err != nil {
		return nil, badRequest(err.Error())
	}
	out := make(map[string]*attachment, len(stubs))
	for _, name := range names {
		stub := stubs[name]
		if stub == nil {
			return nil, badRequest("invalid attachment " + name)
		}
		switch {
		case stub.Follows:
			if mr == nil {
				return nil, badRequest("attachment " + name + " follows, but the request is not multipart")
			}
			part, err := mr.NextPart()
			if err != nil {
				return nil, badRequest("missing multipart body for attachment " + name)
			}
			data, err := io.ReadAll(part)
			if err != nil {
				return nil, err
			}
			contentType := stub.ContentType
			if contentType == "" {
				contentType = part.Header.Get("Content-Type")
			}
			out[name] = newAttachment(contentType, data)
		case stub.Stub:
			if prev == nil || prev.attachments[name] == nil {
				return nil, &couchError{status: http.StatusPreconditionFailed, Err: "missing_stub", Reason: "Invalid attachment stub for " + name}
			}
			out[name] = prev.attachments[name]
		default:
			out[name] = newAttachment(stub.ContentType, stub.Data)
		}
	}
	return out, nil
}

// orderedKeys returns the keys of the JSON object raw, in document order.
func orderedKeys(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		keys = append(keys, tok.(string))
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func (s *Server) deleteDoc() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		id := docID(r)
		s.mu.Lock()
		defer s.mu.Unlock()
		db, ok := s.dbs[param(r, "db")]
		if !ok {
			return errNoDB
		}
		if db.get(id) == nil {
			return errNotFound
		}
		if err := db.checkRev(id, requestRev(r)); err != nil {
			return err
		}
		rev := db.store(&document{id: id, deleted: true})
		return serveRev(w, http.StatusOK, id, rev)
	})
}

func (s *Server) getAttachment() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		s.mu.RLock()
		defer s.mu.RUnlock()
		db, ok := s.dbs[param(r, "db")]
		if !ok {
			return errNoDB
		}
		doc := db.get(docID(r))
		if doc == nil {
			return errNotFound
		}
		att, ok := doc.attachments[param(r, "attname")]
		if !ok {
			return errNotFound
		}
		w.Header().Set("Content-Type", att.ContentType)
		w.Header().Set("Content-Length", strconv.Itoa(att.Length))
		w.Header().Set("ETag", strconv.Quote(att.Digest))
		w.WriteHeader(http.StatusOK)
		_, err := w.Write(att.Data)
		return err
	})
}

func (s *Server) putAttachment() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		defer r.Body.Close()
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return err
		}
		id := docID(r)
		contentType := r.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		db, ok := s.dbs[param(r, "db")]
		if !ok {
			return errNoDB
		}
		if err := db.checkRev(id, requestRev(r)); err != nil {
			return err
		}
		doc := &document{
			id:          id,
			fields:      map[string]json.RawMessage{},
			attachments: map[string]*attachment{},
		}
		if prev := db.get(id); prev != nil {
			doc.fields = prev.fields
			for name, att := range prev.attachments {
				doc.attachments[name] = att
			}
		}
		doc.attachments[param(r, "attname")] = newAttachment(contentType, data)
		rev := db.store(doc)
		return serveRev(w, http.StatusCreated, id, rev)
	})
}
