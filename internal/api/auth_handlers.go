package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/terra-clan/codecrafters/internal/auth"
	"github.com/terra-clan/codecrafters/internal/models"
)

type signUpRequest struct {
	Email           string        `json:"email"`
	Password        string        `json:"password"`
	ConfirmPassword string        `json:"confirm_password"`
	FullName        string        `json:"full_name"`
	Branch          models.Branch `json:"branch"`
	Semester        int           `json:"semester"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// stringList accepts a JSON array or a comma-separated string
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = auth.SplitList(s)
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*l = items
	return nil
}

type profileRequest struct {
	FullName             *string     `json:"full_name"`
	Bio                  *string     `json:"bio"`
	ProfilePictureURL    *string     `json:"profile_picture_url"`
	ProgrammingLanguages *stringList `json:"programming_languages"`
	CareerInterests      *stringList `json:"career_interests"`
}

func (p profileRequest) toUpdate() models.ProfileUpdate {
	update := models.ProfileUpdate{
		FullName:          p.FullName,
		Bio:               p.Bio,
		ProfilePictureURL: p.ProfilePictureURL,
	}
	if p.ProgrammingLanguages != nil {
		langs := []string(*p.ProgrammingLanguages)
		update.ProgrammingLanguages = &langs
	}
	if p.CareerInterests != nil {
		interests := []string(*p.CareerInterests)
		update.CareerInterests = &interests
	}
	return update
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sess, err := s.auth.SignUp(r.Context(), req.Email, req.Password, req.ConfirmPassword, models.Profile{
		FullName: req.FullName,
		Branch:   req.Branch,
		Semester: req.Semester,
	})
	if err != nil {
		respondAuthError(w, err, "failed to sign up")
		return
	}

	respondJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sess, err := s.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		respondAuthError(w, err, "failed to sign in")
		return
	}

	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.SignOut(r.Context(), extractToken(r)); err != nil {
		slog.Error("failed to sign out", "user_id", currentUserID(r), "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to sign out")
		return
	}

	s.editors.CloseUser(currentUserID(r))

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "signed out",
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFromContext(r.Context())
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := s.auth.UpdateProfile(r.Context(), currentUserID(r), req.toUpdate())
	if err != nil {
		respondAuthError(w, err, "failed to update profile")
		return
	}

	respondJSON(w, http.StatusOK, user)
}

// respondAuthError maps gateway errors to status codes
func respondAuthError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, auth.ErrPasswordMismatch),
		errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrInvalidProfile):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, auth.ErrEmailTaken):
		respondError(w, http.StatusConflict, "email_taken", err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "invalid_credentials", err.Error())
	default:
		slog.Error(fallback, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", fallback)
	}
}
