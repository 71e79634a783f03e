package server

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed static
var staticFS embed.FS

var homeTemplate = template.Must(template.ParseFS(staticFS, "static/index.html"))

// handleHome serves the embedded single-page UI.
func (s *Server) handleHome(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := homeTemplate.Execute(w, map[string]string{"Title": "SentraAI"}); err != nil {
		s.logger.Warn("render home page", "error", err)
	}
}

// staticHandler serves the bundled assets under /static/.
func (s *Server) staticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return http.NotFoundHandler()
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
