// Package httpapi exposes the analysis engine over JSON HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/oncotrace/oncotrace/internal/engine"
	"github.com/oncotrace/oncotrace/internal/extract"
	"github.com/oncotrace/oncotrace/internal/store"
)

const maxBodyBytes = 4 << 20

// Server bundles the handlers' dependencies. Store may be nil, in which
// case run persistence and retrieval are disabled.
type Server struct {
	engine    *engine.Engine
	extractor extract.Extractor
	store     *store.Store
	log       *slog.Logger
}

func NewServer(eng *engine.Engine, extractor extract.Extractor, st *store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: eng, extractor: extractor, store: st, log: logger}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /v1/extract", s.handleExtract)
	mux.HandleFunc("GET /v1/patients/{id}/runs", s.handleListRuns)
	mux.HandleFunc("GET /v1/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	return mux
}

type analyzeRequest struct {
	PatientID string                  `json:"patient_id"`
	Documents []engine.DocumentReport `json:"documents"`
	// Texts are raw report bodies to run through the extractor before
	// analysis; extraction failures become diagnostics, not HTTP errors.
	Texts  []textDocument          `json:"texts,omitempty"`
	Events []engine.TreatmentEvent `json:"events,omitempty"`
	Save   bool                    `json:"save,omitempty"`
}

type textDocument struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !s.decode(w, r, &req) {
		return
	}

	docs := req.Documents
	var diags []engine.Diagnostic
	for _, td := range req.Texts {
		if s.extractor == nil {
			writeError(w, http.StatusBadRequest, "no extractor configured for raw text input")
			return
		}
		doc, err := s.extractor.ExtractDocument(r.Context(), td.Text, td.DocumentID)
		if err != nil {
			diags = append(diags, engine.Diagnostic{
				Kind:       engine.DiagEmptyDocument,
				DocumentID: td.DocumentID,
				Detail:     "extraction failed: " + err.Error(),
			})
			continue
		}
		docs = append(docs, doc)
	}

	res, err := s.engine.Analyze(r.Context(), engine.Input{
		PatientID: req.PatientID,
		Documents: docs,
		Events:    req.Events,
	})
	if errors.Is(err, engine.ErrNoDocuments) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.log.Error("analyze failed", "error", err)
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}
	res.Diagnostics = append(res.Diagnostics, diags...)

	if req.Save && s.store != nil {
		if req.PatientID != "" {
			if err := s.store.UpsertPatient(r.Context(), req.PatientID, ""); err != nil {
				s.log.Error("upsert patient failed", "error", err)
			}
		}
		if err := s.store.SaveRun(r.Context(), res); err != nil {
			s.log.Error("save run failed", "run_id", res.Metadata.RunID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, res)
}

type extractRequest struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if s.extractor == nil {
		writeError(w, http.StatusServiceUnavailable, "no extractor configured")
		return
	}
	var req extractRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	doc, err := s.extractor.ExtractDocument(r.Context(), req.Text, req.DocumentID)
	if err != nil {
		s.log.Error("extract failed", "document_id", req.DocumentID, "error", err)
		writeError(w, http.StatusInternalServerError, "extraction failed")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "no store configured")
		return
	}
	runs, err := s.store.ListRuns(r.Context(), r.PathValue("id"))
	if err != nil {
		s.log.Error("list runs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "listing runs failed")
		return
	}
	if runs == nil {
		runs = []store.RunInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "no store configured")
		return
	}
	res, err := s.store.Run(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.log.Error("get run failed", "error", err)
		writeError(w, http.StatusInternalServerError, "loading run failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.store != nil {
		if counts, err := s.store.Stats(r.Context()); err == nil {
			body["store"] = counts
		} else {
			body["status"] = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
