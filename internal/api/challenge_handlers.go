package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/codecrafters/internal/catalog"
	"github.com/terra-clan/codecrafters/internal/models"
	"github.com/terra-clan/codecrafters/internal/storage"
)

// Challenge browser handlers

func (s *Server) handleListChallenges(w http.ResponseWriter, r *http.Request) {
	filter, err := catalog.ParseFilter(r.URL.Query())
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	// A failed fetch shows an empty browser rather than an error page
	challenges, err := s.repo.ListChallenges(r.Context(), 0)
	if err != nil {
		slog.Error("failed to fetch challenges", "error", err)
		challenges = []*models.Challenge{}
	}

	filtered := catalog.Filter(challenges, filter)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"challenges": filtered,
		"topics":     catalog.Topics(challenges),
		"filter":     filter,
		"total":      len(filtered),
	})
}

func (s *Server) handleGetChallenge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	challenge, err := s.repo.GetChallenge(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not_found", "challenge not found")
		return
	}
	if err != nil {
		slog.Error("failed to get challenge", "error", err, "id", id)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to get challenge")
		return
	}

	respondJSON(w, http.StatusOK, challenge)
}

// Aggregate page handlers

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	view := s.stats.Dashboard(r.Context(), currentUserID(r))
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	view := s.stats.Progress(r.Context(), currentUserID(r))
	respondJSON(w, http.StatusOK, view)
}
