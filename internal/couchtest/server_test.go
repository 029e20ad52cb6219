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
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gitlab.com/flimzy/testy"
)

type request struct {
	method string
	path   string
	body   string
	header http.Header
}

type response struct {
	status int
	header http.Header
	body   string
}

func (r *response) decode(t *testing.T) map[string]interface{} {
	t.Helper()
	var v map[string]interface{}
	if err := json.Unmarshal([]byte(r.body), &v); err != nil {
		t.Fatalf("invalid JSON response %q: %s", r.body, err)
	}
	return v
}

func do(t *testing.T, h http.Handler, req request) *response {
	t.Helper()
	var body io.Reader
	if req.body != "" {
		body = strings.NewReader(req.body)
	}
	r := httptest.NewRequest(req.method, req.path, body)
	if req.body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.header {
		r.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	res := w.Result()
	defer res.Body.Close()
	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	return &response{status: res.StatusCode, header: res.Header, body: string(resBody)}
}

func mustDo(t *testing.T, h http.Handler, status int, req request) *response {
	t.Helper()
	res := do(t, h, req)
	if res.status != status {
		t.Fatalf("%s %s: expected status %d, got %d: %s", req.method, req.path, status, res.status, res.body)
	}
	return res
}

func TestServer(t *testing.T) {
	type step struct {
		request
		wantStatus int
		wantBody   string
	}
	type tt struct {
		options []Option
		steps   []step
	}

	tests := testy.NewTable()
	tests.Add("root", tt{
		steps: []step{
			{
				request:    request{method: http.MethodGet, path: "/"},
				wantStatus: http.StatusOK,
				wantBody:   `{"couchdb":"Welcome","vendor":{"name":"couchtest"},"version":"` + Version + `"}`,
			},
		},
	})
	tests.Add("HEAD root", tt{
		steps: []step{
			{
				request:    request{method: http.MethodHead, path: "/"},
				wantStatus: http.StatusOK,
			},
		},
	})
	tests.Add("create and delete db", tt{
		steps: []step{
			{request: request{method: http.MethodPut, path: "/db"}, wantStatus: http.StatusCreated, wantBody: `{"ok":true}`},
			{request: request{method: http.MethodPut, path: "/db"}, wantStatus: http.StatusPreconditionFailed, wantBody: `{"error":"file_exists","reason":"The database could not be created, the file already exists."}`},
			{request: request{method: http.MethodGet, path: "/_all_dbs"}, wantStatus: http.StatusOK, wantBody: `["db"]`},
			{request: request{method: http.MethodGet, path: "/db"}, wantStatus: http.StatusOK, wantBody: `{"db_name":"db","doc_count":0,"doc_del_count":0,"update_seq":"0"}`},
			{request: request{method: http.MethodDelete, path: "/db"}, wantStatus: http.StatusOK, wantBody: `{"ok":true}`},
			{request: request{method: http.MethodGet, path: "/db"}, wantStatus: http.StatusNotFound, wantBody: `{"error":"not_found","reason":"Database does not exist."}`},
		},
	})
	tests.Add("illegal db name", tt{
		steps: []step{
			{request: request{method: http.MethodPut, path: "/Foo"}, wantStatus: http.StatusBadRequest},
		},
	})
	tests.Add("missing doc", tt{
		steps: []step{
			{request: request{method: http.MethodPut, path: "/db"}, wantStatus: http.StatusCreated},
			{request: request{method: http.MethodGet, path: "/db/foo"}, wantStatus: http.StatusNotFound, wantBody: `{"error":"not_found","reason":"missing"}`},
			{request: request{method: http.MethodHead, path: "/db/foo"}, wantStatus: http.StatusNotFound},
		},
	})
	tests.Add("doc in missing db", tt{
		steps: []step{
			{request: request{method: http.MethodPut, path: "/db/foo", body: `{}`}, wantStatus: http.StatusNotFound, wantBody: `{"error":"not_found","reason":"Database does not exist."}`},
		},
	})
	tests.Add("update conflict", tt{
		steps: []step{
			{request: request{method: http.MethodPut, path: "/db"}, wantStatus: http.StatusCreated},
			{request: request{method: http.MethodPut, path: "/db/foo", body: `{"a":1}`}, wantStatus: http.StatusCreated},
			{request: request{method: http.MethodPut, path: "/db/foo", body: `{"a":2}`}, wantStatus: http.StatusConflict, wantBody: `{"error":"conflict","reason":"Document update conflict."}`},
			{request: request{method: http.MethodPut, path: "/db/foo", body: `{"a":2,"_rev":"1-bogus"}`}, wantStatus: http.StatusConflict},
		},
	})
	tests.Add("invalid document", tt{
		steps: []step{
			{request: request{method: http.MethodPut, path: "/db"}, wantStatus: http.StatusCreated},
			{request: request{method: http.MethodPut, path: "/db/foo", body: `[1,2]`}, wantStatus: http.StatusBadRequest, wantBody: `{"error":"bad_request","reason":"Document must be a JSON object"}`},
			{request: request{method: http.MethodPut, path: "/db/foo", body: `{"_foo":1}`}, wantStatus: http.StatusBadRequest, wantBody: `{"error":"bad_request","reason":"Bad special document member: _foo"}`},
		},
	})
	tests.Add("unauthorized", tt{
		options: []Option{WithUser("admin", "abc123"), WithRequireAuth()},
		steps: []step{
			{request: request{method: http.MethodGet, path: "/"}, wantStatus: http.StatusOK},
			{request: request{method: http.MethodGet, path: "/_all_dbs"}, wantStatus: http.StatusUnauthorized, wantBody: `{"error":"unauthorized","reason":"You are not authorized to access this db."}`},
			{request: request{method: http.MethodGet, path: "/_all_dbs", header: http.Header{"Authorization": {"Basic YWRtaW46d3Jvbmc="}}}, wantStatus: http.StatusUnauthorized, wantBody: `{"error":"unauthorized","reason":"Name or password is incorrect."}`},
			{request: request{method: http.MethodGet, path: "/_all_dbs", header: http.Header{"Authorization": {"Basic YWRtaW46YWJjMTIz"}}}, wantStatus: http.StatusOK, wantBody: `[]`},
		},
	})
	tests.Add("anonymous session", tt{
		steps: []step{
			{request: request{method: http.MethodGet, path: "/_session"}, wantStatus: http.StatusOK, wantBody: `{"info":{"authentication_handlers":["cookie","default"]},"ok":true,"userCtx":{"name":null,"roles":[]}}`},
		},
	})
	tests.Add("bad login", tt{
		options: []Option{WithUser("admin", "abc123")},
		steps: []step{
			{request: request{method: http.MethodPost, path: "/_session", body: `{"name":"admin","password":"wrong"}`}, wantStatus: http.StatusUnauthorized, wantBody: `{"error":"unauthorized","reason":"Name or password is incorrect."}`},
		},
	})
	tests.Add("login with unsupported content type", tt{
		options: []Option{WithUser("admin", "abc123")},
		steps: []step{
			{request: request{method: http.MethodPost, path: "/_session", body: `name=admin`, header: http.Header{"Content-Type": {"text/plain"}}}, wantStatus: http.StatusUnsupportedMediaType},
		},
	})

	tests.Run(t, func(t *testing.T, tt tt) {
		s := New(tt.options...)
		for _, step := range tt.steps {
			res := do(t, s, step.request)
			if res.status != step.wantStatus {
				t.Fatalf("%s %s: expected status %d, got %d: %s", step.method, step.path, step.wantStatus, res.status, res.body)
			}
			if step.wantBody == "" {
				continue
			}
			if d := testy.DiffAsJSON([]byte(step.wantBody), []byte(res.body)); d != nil {
				t.Errorf("%s %s: unexpected body:\n%s", step.method, step.path, d)
			}
		}
	})
}

func TestDocumentLifecycle(t *testing.T) {
	s := New()
	mustDo(t, s, http.StatusCreated, request{method: http.MethodPut, path: "/db"})

	res := mustDo(t, s, http.StatusCreated, request{method: http.MethodPut, path: "/db/foo", body: `{"a":1}`})
	created := res.decode(t)
	rev1, _ := created["rev"].(string)
	if !strings.HasPrefix(rev1, "1-") {
		t.Fatalf("unexpected rev: %s", rev1)
	}
	if etag := res.header.Get("ETag"); etag != `"`+rev1+`"` {
		t.Errorf("unexpected ETag: %s", etag)
	}

	res = mustDo(t, s, http.StatusOK, request{method: http.MethodGet, path: "/db/foo"})
	want := `{"_id":"foo","_rev":"` + rev1 + `","a":1}`
	if d := testy.DiffAsJSON([]byte(want), []byte(res.body)); d != nil {
		t.Error(d)
	}

	mustDo(t, s, http.StatusNotModified, request{method: http.MethodGet, path: "/db/foo", header: http.Header{"If-None-Match": {`"` + rev1 + `"`}}})

	res = mustDo(t, s, http.StatusCreated, request{method: http.MethodPut, path: "/db/foo?rev=" + rev1, body: `{"a":2}`})
	rev2, _ := res.decode(t)["rev"].(string)
	if !strings.HasPrefix(rev2, "2-") {
		t.Fatalf("unexpected rev: %s", rev2)
	}

	mustDo(t, s, http.StatusConflict, request{method: http.MethodDelete, path: "/db/foo?rev=" + rev1})
	mustDo(t, s, http.StatusOK, request{method: http.MethodDelete, path: "/db/foo", header: http.Header{"If-Match": {`"` + rev2 + `"`}}})
	res = mustDo(t, s, http.StatusNotFound, request{method: http.MethodGet, path: "/db/foo"})
	if d := testy.DiffAsJSON([]byte(`{"error":"not_found","reason":"deleted"}`), []byte(res.body)); d != nil {
		t.Error(d)
	}

	res = mustDo(t, s, http.StatusOK, request{method: http.MethodGet, path: "/db"})
	if d := testy.DiffAsJSON([]byte(`{"db_name":"db","doc_count":0,"doc_del_count":1,"update_seq":"3"}`), []byte(res.body)); d != nil {
		t.Error(d)
	}

	res = mustDo(t, s, http.StatusCreated, request{method: http.MethodPut, path: "/db/foo", body: `{"a":3}`})
	if rev, _ := res.decode(t)["rev"].(string); !strings.HasPrefix(rev, "4-") {
		t.Errorf("unexpected rev after recreation: %s", rev)
	}
}

func TestEscapedDocID(t *testing.T) {
	s := New()
	mustDo(t, s, http.StatusCreated, request{method: http.MethodPut, path: "/db"})
	res := mustDo(t, s, http.StatusCreated, request{method: http.MethodPut, path: "/db/a%2Fb", body: `{}`})
	if id := res.decode(t)["id"]; id != "a/b" {
		t.Errorf("unexpected id: %v", id)
	}
	mustDo(t, s, http.StatusOK, request{method: http.MethodGet, path: "/db/a%2Fb"})
}

func TestPostDoc(t *testing.T) {
	s := New()
	mustDo(t, s, http.StatusCreated, request{method: http.MethodPut, path: "/db"})
	res := mustDo(t, s, http.StatusCreated, request{method: http.MethodPost, path: "/db", body: `{"a":1}`})
	id, _ := res.decode(t)["id"].(string)
	if len(id) != 32 {
		t.Fatalf("unexpected generated id: %q", id)
	}
	mustDo(t, s, http.StatusOK, request{method: http.MethodGet, path: "/db/" + id})

	res = mustDo(t, s, http.StatusCreated, request{method: http.MethodPost, path: "/db", body: `{"_id":"bar"}`})
	if id := res.decode(t)["id"]; id != "bar" {
		t.Errorf("unexpected id: %v", id)
	}
}

func TestAttachments(t *testing.T) {
	s := New()
	mustDo(t, s, http.StatusCreated, request{method: http.MethodPut, path: "/db"})
	res := mustDo(t, s, http.StatusCreated, request{
		method: http.MethodPut,
		path:   "/db/foo/hello.txt",
		body:   "Hello, World!",
		header: http.Header{"Content-Type": {"text/plain"}},
	})
	rev, _ := res.decode(t)["rev"].(string)

	res = mustDo(t, s, http.StatusOK, request{method: http.MethodGet, path: "/db/foo/hello.txt"})
	if res.body != "Hello, World!" {
		t.Errorf("unexpected attachment body: %q", res.body)
	}
	if ct := res.header.Get("Content-Type"); ct != "text/plain" {
		t.Errorf("unexpected content type: %s", ct)
	}

	mustDo(t, s, http.StatusConflict, request{method: http.MethodPut, path: "/db/foo/other.txt", body: "x", header: http.Header{"Content-Type": {"text/plain"}}})
	mustDo(t, s, http.StatusCreated, request{method: http.MethodPut, path: "/db/foo/other.txt?rev=" + rev, body: "x", header: http.Header{"Content-Type": {"text/plain"}}})

	res = mustDo(t, s, http.StatusOK, request{method: http.MethodGet, path: "/db/foo"})
	atts, _ := res.decode(t)["_attachments"].(map[string]interface{})
	if len(atts) != 2 {
		t.Fatalf("expected 2 attachments, got %v", atts)
	}
	hello, _ := atts["hello.txt"].(map[string]interface{})
	if hello["stub"] != true || hello["length"] != float64(13) || hello["content_type"] != "text/plain" {
		t.Errorf("unexpected stub: %v", hello)
	}

	mustDo(t, s, http.StatusNotFound, request{method: http.MethodGet, path: "/db/foo/missing.txt"})
}

func TestMultipartPut(t *testing.T) {
	s := New()
	mustDo(t, s, http.StatusCreated, request{method: http.MethodPut, path: "/db"})

	var body bytes.Buffer
	body.WriteString("--abc\r\ncontent-type: application/json\r\n\r\n")
	body.WriteString(`{"a":1,"_attachments":{"second.txt":{"follows":true,"content_type":"text/plain","length":6},"first.bin":{"follows":true,"content_type":"application/octet-stream","length":5}}}`)
	body.WriteString("\r\n--abc\r\ncontent-type: text/plain\r\n\r\nsecond\r\n")
	body.WriteString("--abc\r\ncontent-type: application/octet-stream\r\n\r\nfirst\r\n")
	body.WriteString("--abc--\r\n")

	mustDo(t, s, http.StatusCreated, request{
		method: http.MethodPut,
		path:   "/db/foo",
		body:   body.String(),
		header: http.Header{"Content-Type": {"multipart/related; boundary=abc"}},
	})

	res := mustDo(t, s, http.StatusOK, request{method: http.MethodGet, path: "/db/foo/second.txt"})
	if res.body != "second" {
		t.Errorf("unexpected second.txt: %q", res.body)
	}
	res = mustDo(t, s, http.StatusOK, request{method: http.MethodGet, path: "/db/foo/first.bin"})
	if res.body != "first" {
		t.Errorf("unexpected first.bin: %q", res.body)
	}
	if ct := res.header.Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("unexpected content type: %s", ct)
	}
}

func TestMultipartPutMissingPart(t *testing.T) {
	s := New()
	mustDo(t, s, http.StatusCreated, request{method: http.MethodPut, path: "/db"})
	body := "--abc\r\ncontent-type: application/json\r\n\r\n" +
		`{"_attachments":{"a.txt":{"follows":true,"content_type":"text/plain"}}}` +
		"\r\n--abc--\r\n"
	mustDo(t, s, http.StatusBadRequest, request{
		method: http.MethodPut,
		path:   "/db/foo",
		body:   body,
		header: http.Header{"Content-Type": {"multipart/related; boundary=abc"}},
	})
}

func TestAllDocs(t *testing.T) {
	s := New()
	mustDo(t, s, http.StatusCreated, request{method: http.MethodPut, path: "/db"})
	for _, id := range []string{"c", "a", "b", "d"} {
		mustDo(t, s, http.StatusCreated, request{method: http.MethodPut, path: "/db/" + id, body: `{"n":"` + id + `"}`})
	}

	ids := func(t *testing.T, res *response) []string {
		t.Helper()
		var result struct {
			Rows []struct {
				ID    string `json:"id"`
				Error string `json:"error"`
			} `json:"rows"`
		}
		if err := json.Unmarshal([]byte(res.body), &result); err != nil {
			t.Fatal(err)
		}
		out := make([]string, 0, len(result.Rows))
		for _, row := range result.Rows {
			if row.Error != "" {
				out = append(out, row.Error)
				continue
			}
			out = append(out, row.ID)
		}
		return out
	}

	type tt struct {
		req  request
		want []string
	}
	tests := testy.NewTable()
	tests.Add("all", tt{
		req:  request{method: http.MethodGet, path: "/db/_all_docs"},
		want: []string{"a", "b", "c", "d"},
	})
	tests.Add("range", tt{
		req:  request{method: http.MethodGet, path: `/db/_all_docs?startkey=%22b%22&endkey=%22c%22`},
		want: []string{"b", "c"},
	})
	tests.Add("descending with limit", tt{
		req:  request{method: http.MethodGet, path: "/db/_all_docs?descending=true&limit=2"},
		want: []string{"d", "c"},
	})
	tests.Add("skip", tt{
		req:  request{method: http.MethodGet, path: "/db/_all_docs?skip=3"},
		want: []string{"d"},
	})
	tests.Add("key", tt{
		req:  request{method: http.MethodGet, path: `/db/_all_docs?key=%22c%22`},
		want: []string{"c"},
	})
	tests.Add("keys via POST", tt{
		req:  request{method: http.MethodPost, path: "/db/_all_docs", body: `{"keys":["d","x","a"]}`},
		want: []string{"d", "not_found", "a"},
	})
	tests.Run(t, func(t *testing.T, tt tt) {
		res := mustDo(t, s, http.StatusOK, tt.req)
		if d := cmp.Diff(tt.want, ids(t, res)); d != "" {
			t.Error(d)
		}
	})

	res := mustDo(t, s, http.StatusOK, request{method: http.MethodGet, path: `/db/_all_docs?key=%22a%22&include_docs=true`})
	var result struct {
		TotalRows int `json:"total_rows"`
		Rows      []struct {
			Doc map[string]interface{} `json:"doc"`
		} `json:"rows"`
	}
	if err := json.Unmarshal([]byte(res.body), &result); err != nil {
		t.Fatal(err)
	}
	if result.TotalRows != 4 {
		t.Errorf("unexpected total_rows: %d", result.TotalRows)
	}
	if len(result.Rows) != 1 || result.Rows[0].Doc["n"] != "a" {
		t.Errorf("unexpected rows: %v", result.Rows)
	}
}

func TestView(t *testing.T) {
	s := New()
	mustDo(t, s, http.StatusCreated, request{method: http.MethodPut, path: "/db"})
	mustDo(t, s, http.StatusCreated, request{method: http.MethodPut, path: "/db/_design/ex", body: `{"views":{"by_name":{"map":"function(doc) { if (doc.name) { emit(doc.name, doc.age); } }"},"count":{"map":"function(doc) { emit(doc.name, 1); }","reduce":"_count"}}}`})
	for id, body := range map[string]string{
		"1": `{"name":"carol","age":30}`,
		"2": `{"name":"alice","age":25}`,
		"3": `{"name":"bob"}`,
		"4": `{"other":true}`,
	} {
		mustDo(t, s, http.StatusCreated, request{method: http.MethodPut, path: "/db/" + id, body: body})
	}

	res := mustDo(t, s, http.StatusOK, request{method: http.MethodGet, path: "/db/_design/ex/_view/by_name"})
	want := `{"total_rows":3,"offset":0,"rows":[
		{"id":"2","key":"alice","value":25},
		{"id":"3","key":"bob","value":null},
		{"id":"1","key":"carol","value":30}
	]}`
	if d := testy.DiffAsJSON([]byte(want), []byte(res.body)); d != nil {
		t.Error(d)
	}

	res = mustDo(t, s, http.StatusOK, request{method: http.MethodGet, path: `/db/_design/ex/_view/by_name?startkey=%22b%22&descending=false`})
	want = `{"total_rows":3,"offset":0,"rows":[
		{"id":"3","key":"bob","value":null},
		{"id":"1","key":"carol","value":30}
	]}`
	if d := testy.DiffAsJSON([]byte(want), []byte(res.body)); d != nil {
		t.Error(d)
	}

	res = mustDo(t, s, http.StatusOK, request{method: http.MethodGet, path: "/db/_design/ex/_view/count"})
	if d := testy.DiffAsJSON([]byte(`{"rows":[{"key":null,"value":3}]}`), []byte(res.body)); d != nil {
		t.Error(d)
	}
	res = mustDo(t, s, http.StatusOK, request{method: http.MethodGet, path: "/db/_design/ex/_view/count?reduce=false&limit=1"})
	if d := testy.DiffAsJSON([]byte(`{"total_rows":3,"offset":0,"rows":[{"id":"2","key":"alice","value":1}]}`), []byte(res.body)); d != nil {
		t.Error(d)
	}

	mustDo(t, s, http.StatusNotFound, request{method: http.MethodGet, path: "/db/_design/ex/_view/missing"})
	mustDo(t, s, http.StatusNotFound, request{method: http.MethodGet, path: "/db/_design/missing/_view/by_name"})
}

func TestSessionCookie(t *testing.T) {
	s := New(WithUser("admin", "abc123", "_admin"), WithRequireAuth())
	res := mustDo(t, s, http.StatusOK, request{
		method: http.MethodPost,
		path:   "/_session",
		body:   "name=admin&password=abc123",
		header: http.Header{"Content-Type": {"application/x-www-form-urlencoded"}},
	})
	if d := testy.DiffAsJSON([]byte(`{"ok":true,"name":"admin","roles":["_admin"]}`), []byte(res.body)); d != nil {
		t.Error(d)
	}
	setCookie := res.header.Get("Set-Cookie")
	if !strings.HasPrefix(setCookie, "AuthSession=") || !strings.Contains(setCookie, "Max-Age=600") {
		t.Fatalf("unexpected Set-Cookie: %s", setCookie)
	}
	cookie := strings.SplitN(setCookie, ";", 2)[0]

	res = mustDo(t, s, http.StatusOK, request{method: http.MethodGet, path: "/_session", header: http.Header{"Cookie": {cookie}}})
	want := `{"ok":true,"userCtx":{"name":"admin","roles":["_admin"]},"info":{"authentication_handlers":["cookie","default"],"authenticated":"cookie","authentication_db":"_users"}}`
	if d := testy.DiffAsJSON([]byte(want), []byte(res.body)); d != nil {
		t.Error(d)
	}
	mustDo(t, s, http.StatusOK, request{method: http.MethodGet, path: "/_all_dbs", header: http.Header{"Cookie": {cookie}}})

	res = mustDo(t, s, http.StatusOK, request{method: http.MethodDelete, path: "/_session", header: http.Header{"Cookie": {cookie}}})
	if sc := res.header.Get("Set-Cookie"); !strings.HasPrefix(sc, "AuthSession=;") {
		t.Errorf("unexpected Set-Cookie: %s", sc)
	}
	mustDo(t, s, http.StatusUnauthorized, request{method: http.MethodGet, path: "/_all_dbs", header: http.Header{"Cookie": {cookie}}})
}
