package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jacklau/distscore/internal/distance"
	"github.com/jacklau/distscore/internal/pipeline"
	"github.com/jacklau/distscore/internal/store"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 32 << 20

type documentJSON struct {
	ID     string         `json:"id"`
	Source map[string]any `json:"source"`
}

type scoreRequest struct {
	Params    map[string]any `json:"params"`
	Documents []documentJSON `json:"documents"`
}

type resultJSON struct {
	ID    string   `json:"id"`
	Score *float64 `json:"score,omitempty"`
	Code  string   `json:"code"`
	Error string   `json:"error,omitempty"`
}

type scoreResponse struct {
	RunID   string       `json:"run_id,omitempty"`
	Scored  int          `json:"scored"`
	Failed  int          `json:"failed"`
	Results []resultJSON `json:"results"`
}

type errorJSON struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorJSON{Code: code, Error: message})
}

// decodeBody decodes a JSON body, keeping numbers as json.Number so large
// integers survive. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func toDocuments(in []documentJSON) []pipeline.Document {
	out := make([]pipeline.Document, len(in))
	for i, d := range in {
		out[i] = pipeline.Document{ID: d.ID, Fields: distance.Source(d.Source)}
	}
	return out
}

func toResult(r pipeline.Result) resultJSON {
	out := resultJSON{ID: r.ID, Code: r.Code()}
	if r.Err != nil {
		out.Error = r.Err.Error()
	} else {
		score := r.Score
		out.Score = &score
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleScore scores the posted documents against inline parameters.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
		return
	}

	params, err := distance.Parse(req.Params)
	if err != nil {
		respondError(w, http.StatusBadRequest, distance.Code(err), err.Error())
		return
	}

	s.runBatch(w, r, pipeline.Request{
		Raw:       req.Params,
		Params:    params,
		Documents: toDocuments(req.Documents),
	})
}

// handleScriptScore scores the posted documents, or every stored document when
// none are posted, against a configured script.
func (s *Server) handleScriptScore(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	params, ok := s.deps.Config.Script(name)
	if !ok {
		respondError(w, http.StatusNotFound, "script_not_found", "unknown script "+name)
		return
	}

	var req scoreRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
		return
	}

	docs := toDocuments(req.Documents)
	if req.Documents == nil {
		if s.deps.Documents == nil {
			respondError(w, http.StatusBadRequest, "bad_request", "no documents posted and no document store configured")
			return
		}
		stored, err := s.deps.Documents.ListDocuments()
		if err != nil {
			s.deps.Logger.Error("failed to list documents", "error", err)
			respondError(w, http.StatusInternalServerError, "internal", "failed to list documents")
			return
		}
		docs = pipeline.FromStore(stored)
	}

	s.runBatch(w, r, pipeline.Request{
		Script:    name,
		Raw:       s.deps.Config.Scripts[name],
		Params:    params,
		Documents: docs,
	})
}

// handleDocumentScore scores one stored document against a configured script.
func (s *Server) handleDocumentScore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	name := r.URL.Query().Get("script")
	if name == "" {
		respondError(w, http.StatusBadRequest, "bad_request", "missing script query parameter")
		return
	}
	params, ok := s.deps.Config.Script(name)
	if !ok {
		respondError(w, http.StatusNotFound, "script_not_found", "unknown script "+name)
		return
	}
	if s.deps.Documents == nil {
		respondError(w, http.StatusServiceUnavailable, "no_store", "no document store configured")
		return
	}

	doc, err := s.deps.Documents.GetDocument(id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "document_not_found", err.Error())
		return
	}
	if err != nil {
		s.deps.Logger.Error("failed to get document", "doc", id, "error", err)
		respondError(w, http.StatusInternalServerError, "internal", "failed to get document")
		return
	}

	res := s.deps.Pipeline.Score(params, pipeline.Document{ID: doc.ID, Fields: distance.Source(doc.Source)})
	if res.Err != nil {
		respondJSON(w, http.StatusUnprocessableEntity, toResult(res))
		return
	}
	respondJSON(w, http.StatusOK, toResult(res))
}

func (s *Server) runBatch(w http.ResponseWriter, r *http.Request, req pipeline.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	batch, err := s.deps.Pipeline.Run(ctx, req)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidDocument) {
			respondError(w, http.StatusBadRequest, "invalid_document", err.Error())
			return
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			respondError(w, http.StatusServiceUnavailable, "timeout", err.Error())
			return
		}
		s.deps.Logger.Error("batch failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal", "scoring failed")
		return
	}

	resp := scoreResponse{
		RunID:   batch.RunID,
		Scored:  batch.Scored,
		Failed:  batch.Failed,
		Results: make([]resultJSON, len(batch.Results)),
	}
	for i, res := range batch.Results {
		resp.Results[i] = toResult(res)
	}
	respondJSON(w, http.StatusOK, resp)
}
