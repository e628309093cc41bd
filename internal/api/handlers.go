package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/page-bundler/internal/bundle"
)

// User facing messages.
const (
	msgInvalidURL      = "Please enter a valid URL."
	msgProcessFailed   = "An error occurred while processing the URL."
	msgProcessNotFound = "Process not found."
	msgFileNotFound    = "File not found."
)

type createBundleRequest struct {
	URL  string `json:"url"`
	Mode string `json:"mode"`
}

type createBundleResponse struct {
	ID     string             `json:"id"`
	Bundle bundle.Bundle      `json:"bundle"`
	Images bundle.ImageReport `json:"images"`
}

type deliverResponse struct {
	ID     string                `json:"id"`
	Report bundle.DeliveryReport `json:"report"`
}

func (s *Server) createBundle(w http.ResponseWriter, r *http.Request) {
	var req createBundleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	rawURL := strings.TrimSpace(req.URL)
	if rawURL == "" {
		s.writeError(w, http.StatusBadRequest, msgInvalidURL)
		return
	}
	mode := s.opts.DefaultMode
	if strings.TrimSpace(req.Mode) != "" {
		parsed, err := bundle.ParseContentMode(req.Mode)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		mode = parsed
	}

	// A run finishes even if the client goes away; the stored result stays
	// reachable by id.
	ctx := context.WithoutCancel(r.Context())
	result, err := s.runner.Run(ctx, rawURL, mode)
	if err != nil {
		if errors.Is(err, bundle.ErrFetchFailed) {
			s.writeError(w, http.StatusBadGateway, msgProcessFailed)
			return
		}
		s.logger.Error("pipeline run failed", zap.String("url", rawURL), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, msgProcessFailed)
		return
	}
	if err := s.store.Put(ctx, result); err != nil {
		s.logger.Error("store result failed", zap.String("id", result.ID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to store result")
		return
	}
	s.writeJSON(w, http.StatusCreated, createBundleResponse{
		ID:     result.ID,
		Bundle: result.Bundle,
		Images: result.Images,
	})
}

func (s *Server) getBundle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeLookupError(w, id, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) deliverBundle(w http.ResponseWriter, r *http.Request) {
	if s.opts.Deliverer == nil {
		s.writeError(w, http.StatusServiceUnavailable, "webhook delivery is not configured")
		return
	}
	id := chi.URLParam(r, "id")
	// The result leaves the store here, so delivery must not be cut short.
	ctx := context.WithoutCancel(r.Context())
	result, err := s.store.Take(ctx, id)
	if err != nil {
		s.writeLookupError(w, id, err)
		return
	}
	report, err := s.opts.Deliverer.Deliver(ctx, &result.Bundle)
	if err != nil {
		if errors.Is(err, bundle.ErrArchiveConsumed) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("delivery failed", zap.String("id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "delivery failed")
		return
	}
	s.logger.Info("bundle delivered",
		zap.String("id", id),
		zap.Int("delivered", report.Delivered()),
		zap.Int("dropped", report.Dropped()),
	)
	s.writeJSON(w, http.StatusOK, deliverResponse{ID: id, Report: report})
}

func (s *Server) deleteBundle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.writeLookupError(w, id, err)
		return
	}
	s.logger.Info("bundle evicted", zap.String("id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) downloadArchive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeLookupError(w, id, err)
		return
	}
	archivePath := result.Bundle.ArchivePath
	if archivePath == "" {
		s.writeError(w, http.StatusNotFound, msgFileNotFound)
		return
	}
	// #nosec G304 -- the path comes from a stored pipeline result.
	f, err := os.Open(archivePath)
	if err != nil {
		s.writeError(w, http.StatusNotFound, msgFileNotFound)
		return
	}
	defer f.Close() //nolint:errcheck // read-only handle
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		s.writeError(w, http.StatusNotFound, msgFileNotFound)
		return
	}

	name := filepath.Base(archivePath)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Server) writeLookupError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, bundle.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, msgProcessNotFound)
		return
	}
	s.logger.Error("bundle lookup failed", zap.String("id", id), zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, "bundle lookup failed")
}
