package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/KaramelBytes/phenodash/internal/analysis"
	"github.com/KaramelBytes/phenodash/internal/chart"
	"github.com/KaramelBytes/phenodash/internal/dataset"
	"github.com/KaramelBytes/phenodash/internal/export"
	"github.com/KaramelBytes/phenodash/internal/gallery"
	"github.com/KaramelBytes/phenodash/internal/logging"
)

// Figures rendered per selected genotype, then for all genotypes, in page order.
var (
	individualFigures = []string{"bounding_area", "canopy_temperature", "fvfm"}
	overviewFigures   = []string{"fvfm", "bounding_area", "height", "canopy_temperature"}
)

type errorBody struct {
	Error string `json:"error"`
}

// writeJSON encodes v before writing the header; an encoding failure becomes a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		logging.Errorw("encode response", "error", err)
		buf.Reset()
		status = http.StatusInternalServerError
		_ = json.NewEncoder(&buf).Encode(errorBody{Error: "encode response: " + err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logging.Warnw("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// snapshot fetches the current snapshot or writes 503.
func (s *Server) snapshot(w http.ResponseWriter) (*Snapshot, bool) {
	snap, _ := s.Current()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, ErrNoSnapshot)
		return nil, false
	}
	return snap, true
}

type figureRef struct {
	chart.Spec
	URL string `json:"url"`
}

type indexView struct {
	Title      string
	DocsURL    string
	Genotypes  []string
	Selected   string
	Individual []figureRef
	Overview   []figureRef
	Gallery    []gallery.Column
	RunID      string
	LoadedAt   string
	Rows       int
	Error      string
}

func refs(names []string) []figureRef {
	out := make([]figureRef, 0, len(names))
	for _, n := range names {
		if spec, ok := chart.Lookup(n); ok {
			out = append(out, figureRef{Spec: spec, URL: "/api/figures/" + n})
		}
	}
	return out
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	selected := r.URL.Query().Get("genotype")
	if selected == "" {
		selected = s.cfg.DefaultGenotype
	}
	view := indexView{
		Title:      "Phytooracle Products",
		DocsURL:    DocsURL,
		Genotypes:  s.cfg.Genotypes,
		Selected:   selected,
		Individual: refs(individualFigures),
		Overview:   refs(overviewFigures),
		Gallery:    gallery.Catalog(s.cfg.GalleryDir),
	}
	snap, lastErr := s.Current()
	if snap != nil {
		view.RunID = snap.Result.RunID
		view.LoadedAt = snap.LoadedAt.UTC().Format(time.RFC3339)
		view.Rows = snap.Result.Table.Len()
	}
	if lastErr != nil {
		view.Error = lastErr.Error()
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "index.html", view); err != nil {
		logging.Errorw("render index", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap, lastErr := s.Current()
	body := map[string]any{"status": "ok"}
	status := http.StatusOK
	if snap == nil {
		body["status"] = "unavailable"
		status = http.StatusServiceUnavailable
	} else {
		body["run_id"] = snap.Result.RunID
		body["rows"] = snap.Result.Table.Len()
		body["loaded_at"] = snap.LoadedAt.UTC().Format(time.RFC3339)
	}
	if lastErr != nil {
		body["last_error"] = lastErr.Error()
		if snap != nil {
			body["status"] = "stale"
		}
	}
	writeJSON(w, status, body)
}

func (s *Server) handleFigureList(w http.ResponseWriter, _ *http.Request) {
	var names []string
	for _, spec := range chart.Catalog() {
		names = append(names, spec.Name)
	}
	writeJSON(w, http.StatusOK, refs(names))
}

func (s *Server) handleFigure(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	spec, ok := chart.Lookup(name)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown figure "+name))
		return
	}
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	fig, err := chart.Build(snap.Result.Table, spec, chart.Options{
		Genotype: r.URL.Query().Get("genotype"),
		Frac:     s.cfg.LowessFrac,
	})
	if err != nil {
		var mce *dataset.MissingColumnError
		if errors.As(err, &mce) {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, fig)
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	t := snap.Result.Table
	if g := r.URL.Query().Get("genotype"); g != "" {
		t = t.Filter(func(row dataset.Row) bool { return row.Genotype == g })
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":  snap.Result.RunID,
		"columns": export.Header(t),
		"rows":    export.Records(t),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	md := analysis.Summarize(snap.Result, analysis.DefaultOptions()).Markdown()
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write([]byte(md))
}

func (s *Server) handleGallery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, gallery.Catalog(s.cfg.GalleryDir))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Refresh(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id": snap.Result.RunID,
		"rows":   snap.Result.Table.Len(),
		"trace":  snap.Result.Trace,
	})
}
