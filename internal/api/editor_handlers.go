package api

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/codecrafters/internal/assistant"
	"github.com/terra-clan/codecrafters/internal/editor"
	"github.com/terra-clan/codecrafters/internal/models"
)

// maxAudioBytes matches the Whisper upload limit
const maxAudioBytes = 25 << 20

type codeRequest struct {
	Code string `json:"code"`
}

type languageRequest struct {
	Language models.Language `json:"language"`
}

type askRequest struct {
	Message   string           `json:"message"`
	QueryType models.QueryType `json:"query_type"`
}

// Editor handlers

func (s *Server) handleOpenEditor(w http.ResponseWriter, r *http.Request) {
	sess, err := s.editors.Open(r.Context(), currentUserID(r), chi.URLParam(r, "challengeId"))
	if err != nil {
		respondEditorError(w, err, "failed to open editor")
		return
	}
	respondJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleGetEditor(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.editorSession(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleSetCode(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.editorSession(w, r)
	if !ok {
		return
	}

	var req codeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := sess.SetCode(req.Code); err != nil {
		respondEditorError(w, err, "failed to update code")
		return
	}
	respondJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleSwitchLanguage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.editorSession(w, r)
	if !ok {
		return
	}

	var req languageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Language.Valid() {
		respondError(w, http.StatusBadRequest, "validation_error", "unsupported language")
		return
	}

	switched, err := sess.SwitchLanguage(req.Language)
	if err != nil {
		respondEditorError(w, err, "failed to switch language")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"switched": switched,
		"session":  sess.View(),
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.editorSession(w, r)
	if !ok {
		return
	}

	result, err := sess.Submit(r.Context())
	if err != nil {
		respondEditorError(w, err, "Error submitting solution")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.editorSession(w, r)
	if !ok {
		return
	}

	var req askRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	answer, err := sess.Ask(r.Context(), req.Message, req.QueryType)
	if err != nil {
		respondEditorError(w, err, "failed to reach the assistant")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"answer": answer,
	})
}

// handleVoice accepts a multipart "audio" file or a raw audio body
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.editorSession(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes)

	var (
		audio    io.Reader = r.Body
		filename           = r.URL.Query().Get("filename")
	)
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "multipart/form-data" {
		file, header, err := r.FormFile("audio")
		if err != nil {
			respondError(w, http.StatusBadRequest, "validation_error", "audio file is required")
			return
		}
		defer file.Close()
		audio, filename = file, header.Filename
	}

	transcript, answer, err := sess.AskVoice(r.Context(), audio, filename)
	if err != nil {
		respondEditorError(w, err, "failed to process voice query")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"transcript": transcript,
		"answer":     answer,
	})
}

// editorSession looks up the caller's open session, writing the error response when absent
func (s *Server) editorSession(w http.ResponseWriter, r *http.Request) (*editor.Session, bool) {
	sess, err := s.editors.Get(currentUserID(r), chi.URLParam(r, "challengeId"))
	if err != nil {
		respondEditorError(w, err, "failed to find editor session")
		return nil, false
	}
	return sess, true
}

// respondEditorError maps editor errors to status codes
func respondEditorError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, editor.ErrChallengeNotFound):
		respondError(w, http.StatusNotFound, "challenge_not_found", "Challenge not found")
	case errors.Is(err, editor.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", "open the challenge in the editor first")
	case errors.Is(err, editor.ErrNotLoaded):
		respondError(w, http.StatusConflict, "not_loaded", "no challenge is loaded")
	case errors.Is(err, editor.ErrVoiceUnsupported):
		respondError(w, http.StatusNotImplemented, "unsupported_feature", "Voice input is not supported on this server")
	case errors.Is(err, assistant.ErrEmptyQuery):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	default:
		slog.Error(fallback, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", fallback)
	}
}
