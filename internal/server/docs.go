package server

import (
	_ "embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/cespare/xxhash/v2"
	"github.com/go-chi/chi/v5"
)

//go:generate swag init -g docs.go -d ../../cmd/shuttle,.,../engine -o ./openapi --outputTypes json

//go:embed openapi/swagger.json
var openapiDoc []byte

// openapiETag changes whenever the embedded document does.
var openapiETag = fmt.Sprintf(`"%016x"`, xxhash.Sum64(openapiDoc))

var docsPage = template.Must(template.New("docs").Parse(`<!doctype html>
<html lang="en">
<head>
  <title>{{.Title}}</title>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
</head>
<body style="margin: 0">
  <script id="api-reference" data-url="{{.SpecURL}}"></script>
  <script src="https://cdn.jsdelivr.net/npm/@scalar/api-reference"></script>
</body>
</html>`))

// mountDocs serves the API reference page and the document it renders.
func (s *Server) mountDocs(r chi.Router) {
	r.Get("/openapi.json", s.handleOpenAPI)
	r.Get("/docs", s.handleDocs)
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("ETag", openapiETag)
	w.Header().Set("Cache-Control", "public, max-age=300")
	if r.Header.Get("If-None-Match") == openapiETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(openapiDoc)
}

func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	err := docsPage.Execute(w, struct{ Title, SpecURL string }{
		Title:   "Shuttle API Reference",
		SpecURL: "/openapi.json",
	})
	if err != nil {
		slog.Error("render docs page", "error", err)
	}
}
