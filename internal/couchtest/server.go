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

// Package couchtest provides an in-memory imitation of a CouchDB server, for
// use in tests. It implements enough of the CouchDB HTTP API to exercise a
// client: databases, documents, attachments, multipart document uploads,
// _all_docs, simple views, and cookie sessions.
package couchtest

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/monoculum/formam/v3"
	"gitlab.com/flimzy/httpe"

	"github.com/go-kivik/minicouch/internal"
)

// Version is the CouchDB version reported by the server.
const Version = "3.3.3"

// Server is a fake CouchDB server. It satisfies http.Handler.
type Server struct {
	mux         *chi.Mux
	formDecoder *formam.Decoder
	requireAuth bool

	mu       sync.RWMutex
	dbs      map[string]*database
	users    map[string]*user
	sessions map[string]string
}

type user struct {
	password string
	roles    []string
}

// New instantiates a new server instance.
func New(options ...Option) *Server {
	s := &Server{
		mux: chi.NewMux(),
		formDecoder: formam.NewDecoder(&formam.DecoderOptions{
			TagName: "form",
		}),
		dbs:      map[string]*database{},
		users:    map[string]*user{},
		sessions: map[string]string{},
	}
	for _, option := range options {
		option.apply(s)
	}
	s.routes(s.mux)
	return s
}

func (s *Server) routes(mux *chi.Mux) {
	mux.Use(
		GetHead,
		httpe.ToMiddleware(s.handleErrors),
	)
	mux.Get("/", httpe.ToHandler(s.root()).ServeHTTP)
	mux.Get("/_up", httpe.ToHandler(s.up()).ServeHTTP)
	mux.Get("/_session", httpe.ToHandler(s.getSession()).ServeHTTP)
	mux.Post("/_session", httpe.ToHandler(s.postSession()).ServeHTTP)
	mux.Delete("/_session", httpe.ToHandler(s.deleteSession()).ServeHTTP)

	auth := mux.With(
		httpe.ToMiddleware(s.authMiddleware),
	)
	auth.Get("/_all_dbs", httpe.ToHandler(s.allDBs()).ServeHTTP)

	// Databases
	auth.Get("/{db}", httpe.ToHandler(s.db()).ServeHTTP)
	auth.Put("/{db}", httpe.ToHandler(s.createDB()).ServeHTTP)
	auth.Delete("/{db}", httpe.ToHandler(s.deleteDB()).ServeHTTP)
	auth.Post("/{db}", httpe.ToHandler(s.postDoc()).ServeHTTP)
	auth.Get("/{db}/_all_docs", httpe.ToHandler(s.allDocs()).ServeHTTP)
	auth.Post("/{db}/_all_docs", httpe.ToHandler(s.allDocs()).ServeHTTP)

	// Documents
	auth.Get("/{db}/{docid}", httpe.ToHandler(s.getDoc()).ServeHTTP)
	auth.Put("/{db}/{docid}", httpe.ToHandler(s.putDoc()).ServeHTTP)
	auth.Delete("/{db}/{docid}", httpe.ToHandler(s.deleteDoc()).ServeHTTP)
	auth.Get("/{db}/{docid}/{attname}", httpe.ToHandler(s.getAttachment()).ServeHTTP)
	auth.Put("/{db}/{docid}/{attname}", httpe.ToHandler(s.putAttachment()).ServeHTTP)

	// Design docs
	auth.Get("/{db}/_design/{ddoc}", httpe.ToHandler(s.getDoc()).ServeHTTP)
	auth.Put("/{db}/_design/{ddoc}", httpe.ToHandler(s.putDoc()).ServeHTTP)
	auth.Delete("/{db}/_design/{ddoc}", httpe.ToHandler(s.deleteDoc()).ServeHTTP)
	auth.Get("/{db}/_design/{ddoc}/_view/{view}", httpe.ToHandler(s.view()).ServeHTTP)
	auth.Post("/{db}/_design/{ddoc}/_view/{view}", httpe.ToHandler(s.view()).ServeHTTP)
}

func (s *Server) handleErrors(next httpe.HandlerWithError) httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		if err := next.ServeHTTPWithError(w, r); err != nil {
			status := internal.HTTPStatus(err)
			ce := &couchError{}
			if !errors.As(err, &ce) {
				ce.Err = strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_")
				ce.Reason = err.Error()
			}
			return serveJSON(w, status, ce)
		}
		return nil
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func serveJSON(w http.ResponseWriter, status int, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, err = io.Copy(w, bytes.NewReader(body))
	return err
}

func (s *Server) root() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, _ *http.Request) error {
		return serveJSON(w, http.StatusOK, map[string]interface{}{
			"couchdb": "Welcome",
			"vendor": map[string]string{
				"name": "couchtest",
			},
			"version": Version,
		})
	})
}

func (s *Server) up() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, _ *http.Request) error {
		return serveJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ok",
		})
	})
}

// param returns the unescaped URL parameter key. chi returns parameters in
// their escaped form when the request path contains escaped characters.
func param(r *http.Request, key string) string {
	value := chi.URLParam(r, key)
	if unescaped, err := url.PathUnescape(value); err == nil {
		return unescaped
	}
	return value
}

// docID returns the document ID addressed by the request, including the
// _design/ prefix for design documents.
func docID(r *http.Request) string {
	if ddoc := chi.URLParam(r, "ddoc"); ddoc != "" {
		return "_design/" + param(r, "ddoc")
	}
	return param(r, "docid")
}
