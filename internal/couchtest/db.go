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
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gitlab.com/flimzy/httpe"
)

func (s *Server) allDBs() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, _ *http.Request) error {
		s.mu.RLock()
		names := make([]string, 0, len(s.dbs))
		for name := range s.dbs {
			names = append(names, name)
		}
		s.mu.RUnlock()
		sort.Strings(names)
		return serveJSON(w, http.StatusOK, names)
	})
}

func (s *Server) db() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		s.mu.RLock()
		defer s.mu.RUnlock()
		db, ok := s.dbs[param(r, "db")]
		if !ok {
			return errNoDB
		}
		live, deleted := db.docCount()
		return serveJSON(w, http.StatusOK, map[string]interface{}{
			"db_name":       db.name,
			"doc_count":     live,
			"doc_del_count": deleted,
			"update_seq":    strconv.Itoa(db.seq),
		})
	})
}

func (s *Server) createDB() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		name := param(r, "db")
		if !validDBName.MatchString(name) {
			return &couchError{
				status: http.StatusBadRequest,
				Err:    "illegal_database_name",
				Reason: "Name: '" + name + "'. Only lowercase characters (a-z), digits (0-9), and any of the characters _, $, (, ), +, -, and / are allowed. Must begin with a letter.",
			}
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.dbs[name]; ok {
			return errDBExists
		}
		s.dbs[name] = newDatabase(name)
		w.Header().Set("Location", "/"+name)
		return serveJSON(w, http.StatusCreated, map[string]bool{"ok": true})
	})
}

func (s *Server) deleteDB() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		name := param(r, "db")
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.dbs[name]; !ok {
			return errNoDB
		}
		delete(s.dbs, name)
		return serveJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
}

func (s *Server) postDoc() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		defer r.Body.Close()
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return err
		}
		fields, special, err := parseDocument(body)
		if err != nil {
			return err
		}
		id := stringField(special, "_id")
		if id == "" {
			id = strings.ReplaceAll(uuid.NewString(), "-", "")
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		db, ok := s.dbs[param(r, "db")]
		if !ok {
			return errNoDB
		}
		if err := db.checkRev(id, stringField(special, "_rev")); err != nil {
			return err
		}
		rev := db.store(&document{id: id, fields: fields})
		return serveRev(w, http.StatusCreated, id, rev)
	})
}

func serveRev(w http.ResponseWriter, status int, id, rev string) error {
	w.Header().Set("ETag", strconv.Quote(rev))
	return serveJSON(w, status, map[string]interface{}{
		"ok":  true,
		"id":  id,
		"rev": rev,
	})
}

// queryOptions are the query parameters common to _all_docs and views.
type queryOptions struct {
	key         interface{}
	hasKey      bool
	keys        []interface{}
	hasKeys     bool
	startKey    interface{}
	hasStart    bool
	endKey      interface{}
	hasEnd      bool
	descending  bool
	includeDocs bool
	limit       int
	skip        int
	reduce      *bool
}

func parseQueryOptions(r *http.Request) (*queryOptions, error) {
	opts := &queryOptions{limit: -1}
	query := r.URL.Query()
	jsonParam := func(names ...string) (interface{}, bool, error) {
		for _, name := range names {
			if raw, ok := query[name]; ok && len(raw) > 0 {
				var v interface{}
				if err := json.Unmarshal([]byte(raw[0]), &v); err != nil {
					return nil, false, badRequest("invalid value for " + name)
				}
				return v, true, nil
			}
		}
		return nil, false, nil
	}
	var err error
	if opts.key, opts.hasKey, err = jsonParam("key"); err != nil {
		return nil, err
	}
	if opts.startKey, opts.hasStart, err = jsonParam("startkey", "start_key"); err != nil {
		return nil, err
	}
	if opts.endKey, opts.hasEnd, err = jsonParam("endkey", "end_key"); err != nil {
		return nil, err
	}
	keys, hasKeys, err := jsonParam("keys")
	if err != nil {
		return nil, err
	}
	if hasKeys {
		list, ok := keys.([]interface{})
		if !ok {
			return nil, badRequest("`keys` must be an array")
		}
		opts.keys, opts.hasKeys = list, true
	}
	for name, target := range map[string]*bool{"descending": &opts.descending, "include_docs": &opts.includeDocs} {
		if v := query.Get(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, badRequest("invalid boolean for " + name)
			}
			*target = b
		}
	}
	if v := query.Get("reduce"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, badRequest("invalid boolean for reduce")
		}
		opts.reduce = &b
	}
	for name, target := range map[string]*int{"limit": &opts.limit, "skip": &opts.skip} {
		if v := query.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return nil, badRequest("invalid integer for " + name)
			}
			*target = n
		}
	}
	if r.Method == http.MethodPost {
		var body struct {
			Keys []interface{} `json:"keys"`
		}
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
			return nil, badRequest(err.Error())
		}
		if body.Keys != nil {
			opts.keys, opts.hasKeys = body.Keys, true
		}
	}
	return opts, nil
}

type row struct {
	ID    string      `json:"id,omitempty"`
	Key   interface{} `json:"key"`
	Value interface{} `json:"value"`
	Doc   interface{} `json:"doc,omitempty"`

	// sort key, used internally
	sortKey interface{}
}

// window applies key ranges, direction, skip and limit to rows, which must be
// sorted ascending.
func (o *queryOptions) window(rows []row) []row {
	out := make([]row, 0, len(rows))
	for _, r := range rows {
		if o.hasKey && collate(r.sortKey, o.key) != 0 {
			continue
		}
		out = append(out, r)
	}
	if o.descending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	filtered := out[:0]
	for _, r := range out {
		if o.hasStart {
			c := collate(r.sortKey, o.startKey)
			if (!o.descending && c < 0) || (o.descending && c > 0) {
				continue
			}
		}
		if o.hasEnd {
			c := collate(r.sortKey, o.endKey)
			if (!o.descending && c > 0) || (o.descending && c < 0) {
				continue
			}
		}
		filtered = append(filtered, r)
	}
	if o.skip >= len(filtered) {
		return []row{}
	}
	filtered = filtered[o.skip:]
	if o.limit >= 0 && o.limit < len(filtered) {
		filtered = filtered[:o.limit]
	}
	return filtered
}

func (s *Server) allDocs() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		opts, err := parseQueryOptions(r)
		if err != nil {
			return err
		}
		s.mu.RLock()
		defer s.mu.RUnlock()
		db, ok := s.dbs[param(r, "db")]
		if !ok {
			return errNoDB
		}
		ids := db.liveIDs()
		docRow := func(doc *document) row {
			rw := row{
				ID:      doc.id,
				Key:     doc.id,
				Value:   map[string]string{"rev": doc.rev},
				sortKey: doc.id,
			}
			if opts.includeDocs {
				rw.Doc = doc.render(false)
			}
			return rw
		}
		var rows interface{}
		if opts.hasKeys {
			found := make([]interface{}, 0, len(opts.keys))
			for _, k := range opts.keys {
				id, _ := k.(string)
				if doc := db.get(id); doc != nil {
					found = append(found, docRow(doc))
					continue
				}
				found = append(found, map[string]interface{}{"key": k, "error": "not_found"})
			}
			rows = found
		} else {
			all := make([]row, 0, len(ids))
			for _, id := range ids {
				all = append(all, docRow(db.docs[id]))
			}
			rows = opts.window(all)
		}
		return serveJSON(w, http.StatusOK, map[string]interface{}{
			"total_rows": len(ids),
			"offset":     opts.skip,
			"rows":       rows,
		})
	})
}
