package httpapi

import (
	"bytes"
	"embed"
	"encoding/json"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/stuartshay/qso-mapper/internal/mapper"
)

//go:embed web/index.html web/static
var content embed.FS

// staticHandler serves web/static under /static/
func staticHandler() http.Handler {
	sub, err := fs.Sub(content, "web/static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

var indexTemplate = template.Must(template.New("index.html").Funcs(template.FuncMap{
	"toJSON": func(data any) (template.JS, error) {
		b, err := json.Marshal(data)
		return template.JS(b), err
	},
}).ParseFS(content, "web/index.html"))

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	home := s.deps.Processor.DefaultHome()
	data := struct {
		ServiceName string
		HomeCall    string
		HomeGrid    string
		Home        any
		Legend      any
		Unknown     string
		MaxUpload   int64
	}{
		ServiceName: s.deps.ServiceName,
		HomeCall:    home.Callsign,
		HomeGrid:    home.Grid,
		Home:        home.Location,
		Legend:      s.deps.Palette.Legend(),
		Unknown:     mapper.UnknownBandColor,
		MaxUpload:   s.deps.MaxUploadBytes,
	}

	// Render into a buffer so a template error never sends a partial page
	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, data); err != nil {
		log.Error().Err(err).Msg("Failed to render index")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
