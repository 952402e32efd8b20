package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/docindex/internal/pipeline"
	"github.com/hyperjump/docindex/internal/storage"
	"go.uber.org/zap"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := CollectStatus(r.Context(), s.config, s.catalog)
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

// handleBuild runs a build synchronously. The build keeps running if the client
// disconnects.
func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())
	s.logger.Info("build requested", zap.String("request_id", reqID))

	sum, err := s.builder.Run(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, pipeline.ErrBuildInProgress):
		s.respondError(w, http.StatusConflict, err.Error())
	case err != nil:
		s.logger.Error("build failed", zap.String("request_id", reqID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	default:
		s.respondJSON(w, http.StatusOK, sum)
	}
}

func (s *Server) handleGetChunk(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || id == "" {
		s.respondError(w, http.StatusBadRequest, "invalid chunk id")
		return
	}
	chunk, err := s.catalog.GetChunk(r.Context(), id)
	if errors.Is(err, storage.ErrChunkNotFound) {
		s.respondError(w, http.StatusNotFound, "chunk not found")
		return
	}
	if err != nil {
		s.logger.Error("chunk lookup failed", zap.String("id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, chunk)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
