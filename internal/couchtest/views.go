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
	"net/http"
	"regexp"
	"sort"
	"strings"

	"gitlab.com/flimzy/httpe"
)

// emitRE matches the emit call of a map function. Only map functions that
// emit a top-level document field as the key are understood. The value may be
// another top-level field, null, or a number literal.
var emitRE = regexp.MustCompile(`emit\(\s*doc\.(\w+)\s*,\s*(?:doc\.(\w+)|(null)|(-?\d+(?:\.\d+)?))\s*\)`)

type viewDef struct {
	Map    string `json:"map"`
	Reduce string `json:"reduce,omitempty"`
}

type mapFunc struct {
	keyField   string
	valueField string
	literal    interface{}
}

func compileMap(src string) (*mapFunc, error) {
	m := emitRE.FindStringSubmatch(src)
	if m == nil {
		return nil, &couchError{status: http.StatusBadRequest, Err: "compilation_error", Reason: "unsupported map function"}
	}
	fn := &mapFunc{keyField: m[1], valueField: m[2]}
	if m[4] != "" {
		var n float64
		_ = json.Unmarshal([]byte(m[4]), &n)
		fn.literal = n
	}
	return fn, nil
}

func (f *mapFunc) apply(doc *document) (key, value interface{}, ok bool) {
	key, ok = doc.fieldValue(f.keyField)
	if !ok {
		return nil, nil, false
	}
	if f.valueField != "" {
		value, _ = doc.fieldValue(f.valueField)
		return key, value, true
	}
	return key, f.literal, true
}

func (s *Server) view() httpe.HandlerWithError {
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
		ddoc := db.get(docID(r))
		if ddoc == nil {
			return errNotFound
		}
		var views map[string]viewDef
		if raw, ok := ddoc.fields["views"]; ok {
			if err := json.Unmarshal(raw, &views); err != nil {
				return badRequest("invalid views member")
			}
		}
		def, ok := views[param(r, "view")]
		if !ok {
			return &couchError{status: http.StatusNotFound, Err: "not_found", Reason: "missing_named_view"}
		}
		fn, err := compileMap(def.Map)
		if err != nil {
			return err
		}

		rows := make([]row, 0, len(db.docs))
		for _, id := range db.liveIDs() {
			if strings.HasPrefix(id, "_design/") {
				continue
			}
			doc := db.docs[id]
			key, value, ok := fn.apply(doc)
			if !ok {
				continue
			}
			rw := row{ID: id, Key: key, Value: value, sortKey: key}
			if opts.includeDocs {
				rw.Doc = doc.render(false)
			}
			rows = append(rows, rw)
		}
		sort.SliceStable(rows, func(i, j int) bool {
			return collate(rows[i].sortKey, rows[j].sortKey) < 0
		})
		total := len(rows)
		if opts.hasKeys {
			matched := make([]row, 0, len(rows))
			for _, k := range opts.keys {
				for _, rw := range rows {
					if collate(rw.sortKey, k) == 0 {
						matched = append(matched, rw)
					}
				}
			}
			rows = matched
		} else {
			rows = opts.window(rows)
		}

		if def.Reduce == "_count" && (opts.reduce == nil || *opts.reduce) {
			result := []map[string]interface{}{}
			if len(rows) > 0 {
				result = append(result, map[string]interface{}{"key": nil, "value": len(rows)})
			}
			return serveJSON(w, http.StatusOK, map[string]interface{}{"rows": result})
		}
		return serveJSON(w, http.StatusOK, map[string]interface{}{
			"total_rows": total,
			"offset":     opts.skip,
			"rows":       rows,
		})
	})
}

// collate compares two JSON values using CouchDB's view collation order:
// null, false, true, numbers, strings, arrays, objects. Strings are compared
// by code point, rather than by ICU collation.
func collate(a, b interface{}) int {
	ra, rb := collationRank(a), collationRank(b)
	if ra != rb {
		return compareInts(ra, rb)
	}
	switch av := a.(type) {
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case string:
		return strings.Compare(av, b.(string))
	case []interface{}:
		bv := b.([]interface{})
		for i := 0; i < len(av) && i < len(bv); i++ {
			if c := collate(av[i], bv[i]); c != 0 {
				return c
			}
		}
		return compareInts(len(av), len(bv))
	case map[string]interface{}:
		bv := b.(map[string]interface{})
		ak, bk := sortedKeys(av), sortedKeys(bv)
		for i := 0; i < len(ak) && i < len(bk); i++ {
			if c := strings.Compare(ak[i], bk[i]); c != 0 {
				return c
			}
			if c := collate(av[ak[i]], bv[bk[i]]); c != 0 {
				return c
			}
		}
		return compareInts(len(ak), len(bk))
	}
	return 0
}

func collationRank(v interface{}) int {
	switch t := v.(type) {
	case nil:
		return 0
	case bool:
		if t {
			return 2
		}
		return 1
	case float64:
		return 3
	case string:
		return 4
	case []interface{}:
		return 5
	default:
		return 6
	}
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
