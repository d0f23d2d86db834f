// SPDX-License-Identifier: MPL-2.0

package server

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"net/http"
	"strconv"
	"text/template"
)

//go:embed templates/*
var templateFS embed.FS

const (
	contentTypeJS   = "application/javascript; charset=utf-8"
	contentTypeHTML = "text/html; charset=utf-8"
)

type (
	templates struct {
		load  *template.Template
		err   *template.Template
		index *htmltemplate.Template
	}

	loadData struct {
		Root   string
		Paths  string
		Socket bool
		Live   string
	}

	errorData struct {
		Message string
	}

	listingEntry struct {
		Path string
		Name string
		Dir  bool
	}

	listingData struct {
		Pathname string
		Entries  []listingEntry
	}
)

func parseTemplates() (*templates, error) {
	funcs := template.FuncMap{
		"json": func(v any) (string, error) {
			b, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(b), nil
		},
	}

	load, err := template.New("load.js").Funcs(funcs).ParseFS(templateFS, "templates/load.js")
	if err != nil {
		return nil, fmt.Errorf("parse load.js: %w", err)
	}
	errTmpl, err := template.New("error.js").Funcs(funcs).ParseFS(templateFS, "templates/error.js")
	if err != nil {
		return nil, fmt.Errorf("parse error.js: %w", err)
	}
	index, err := htmltemplate.New("index.html").ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parse index.html: %w", err)
	}
	return &templates{load: load, err: errTmpl, index: index}, nil
}

// render executes fn into a buffer so a failed template yields a clean 500
// instead of a truncated body.
func render(w http.ResponseWriter, contentType string, fn func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (t *templates) renderLoad(w http.ResponseWriter, data loadData) {
	render(w, contentTypeJS, func(buf *bytes.Buffer) error { return t.load.Execute(buf, data) })
}

func (t *templates) renderError(w http.ResponseWriter, message string) {
	render(w, contentTypeJS, func(buf *bytes.Buffer) error {
		return t.err.Execute(buf, errorData{Message: message})
	})
}

func (t *templates) renderListing(w http.ResponseWriter, data listingData) {
	render(w, contentTypeHTML, func(buf *bytes.Buffer) error { return t.index.Execute(buf, data) })
}
