package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/terra-clan/codecrafters/internal/auth"
)

// requireSession resolves the bearer token into a session.
// Supports "Authorization: Bearer <token>" and, for WebSocket upgrades, a token query parameter.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			respondError(w, http.StatusUnauthorized, "unauthorized", "sign in to continue")
			return
		}

		sess, err := s.auth.Authenticate(r.Context(), token)
		if errors.Is(err, auth.ErrUnauthenticated) {
			slog.Warn("rejected session token", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
			respondError(w, http.StatusUnauthorized, "unauthorized", "session expired, sign in again")
			return
		}
		if err != nil {
			slog.Error("failed to resolve session", "error", err)
			respondError(w, http.StatusInternalServerError, "internal_error", "authentication error")
			return
		}

		ctx := auth.ContextWithSession(r.Context(), sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractToken reads the session token from request headers or the query string
func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// currentUserID returns the ID of the signed-in user. Only valid behind requireSession.
func currentUserID(r *http.Request) string {
	sess := auth.SessionFromContext(r.Context())
	if sess == nil || sess.User == nil {
		return ""
	}
	return sess.User.ID
}
