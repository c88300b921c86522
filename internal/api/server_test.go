package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/terra-clan/codecrafters/internal/assistant"
	"github.com/terra-clan/codecrafters/internal/auth"
	"github.com/terra-clan/codecrafters/internal/config"
	"github.com/terra-clan/codecrafters/internal/editor"
	"github.com/terra-clan/codecrafters/internal/grader"
	"github.com/terra-clan/codecrafters/internal/models"
	"github.com/terra-clan/codecrafters/internal/stats"
	"github.com/terra-clan/codecrafters/internal/storage"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

type testEnv struct {
	server  *Server
	repo    *storage.MemoryRepository
	editors *editor.Registry
}

func newTestEnv(t *testing.T, cfg config.ServerConfig) *testEnv {
	t.Helper()

	repo := storage.NewMemoryRepository()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for _, c := range []*models.Challenge{
		{
			ID: "two-sum", Title: "Two Sum", Description: "Find two numbers", CreatedAt: base,
			Difficulty: models.DifficultyEasy, Branch: models.BranchGeneral, Topic: "Arrays",
			StarterCode: models.StarterCode{
				models.LanguageJavaScript: "function twoSum() {}",
				models.LanguagePython:     "def two_sum(): pass",
			},
		},
		{
			ID: "graph-bfs", Title: "Graph BFS", Description: "Walk a graph", CreatedAt: base.Add(time.Minute),
			Difficulty: models.DifficultyMedium, Branch: models.BranchIT, Topic: "Graphs",
			StarterCode: models.StarterCode{models.LanguageJavaScript: "function bfs() {}"},
		},
		{
			ID: "signal-sampling", Title: "Signal Sampling", Description: "Nyquist", CreatedAt: base.Add(2 * time.Minute),
			Difficulty: models.DifficultyHard, Branch: models.BranchECE, Topic: "Signals",
			StarterCode: models.StarterCode{models.LanguagePython: "def sample(): pass"},
		},
	} {
		require.NoError(t, repo.UpsertChallenge(ctx, c))
	}

	authSvc := auth.NewService(auth.Config{
		Secret:     "test-secret-with-enough-length",
		Issuer:     "codecrafters-test",
		SessionTTL: time.Hour,
		BcryptCost: bcrypt.MinCost,
	}, repo, auth.NewMemorySessionStore(), nil)

	editors := editor.NewRegistry(editor.Deps{
		Store:     repo,
		Grader:    grader.NewPlaceholderGrader(rand.New(rand.NewSource(7))),
		Assistant: assistant.NewCanned(rand.New(rand.NewSource(7))),
	}, time.Hour)

	server := NewServer(cfg, Services{
		Repo:    repo,
		Auth:    authSvc,
		Stats:   stats.NewService(repo),
		Editors: editors,
		Limiter: NewRateLimiter(1000, 1000),
	})

	return &testEnv{server: server, repo: repo, editors: editors}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (e *testEnv) signUp(t *testing.T, email string) string {
	t.Helper()

	rec, env := e.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]interface{}{
		"email":            email,
		"password":         "password123",
		"confirm_password": "password123",
		"full_name":        "Ada Lovelace",
		"branch":           "CSE",
		"semester":         3,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var sess auth.Session
	require.NoError(t, json.Unmarshal(env.Data, &sess))
	require.NotEmpty(t, sess.Token)
	return sess.Token
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})

	rec, body := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)

	rec, body = env.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})

	for _, path := range []string{"/api/v1/dashboard", "/api/v1/progress", "/api/v1/challenges", "/api/v1/auth/session"} {
		rec, body := env.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.False(t, body.Success)
		require.NotNil(t, body.Error)
		assert.Equal(t, "unauthorized", body.Error.Code)
	}

	rec, _ := env.do(t, http.MethodGet, "/api/v1/dashboard", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignUpValidation(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})

	rec, body := env.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]interface{}{
		"email":            "ada@example.com",
		"password":         "password123",
		"confirm_password": "password124",
		"full_name":        "Ada",
		"branch":           "CSE",
		"semester":         3,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "validation_error", body.Error.Code)
	assert.Equal(t, auth.ErrPasswordMismatch.Error(), body.Error.Message)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/auth/signup", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})
	token := env.signUp(t, "ada@example.com")

	rec, body := env.do(t, http.MethodGet, "/api/v1/auth/session", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sess auth.Session
	require.NoError(t, json.Unmarshal(body.Data, &sess))
	assert.Equal(t, "ada@example.com", sess.User.Email)
	assert.Equal(t, "Ada Lovelace", sess.User.FullName)
	assert.Empty(t, sess.Token)
	assert.Equal(t, "Ada", sess.FirstName)
	assert.NotContains(t, rec.Body.String(), token)

	rec, body = env.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]interface{}{
		"email":            "ada@example.com",
		"password":         "password123",
		"confirm_password": "password123",
		"full_name":        "Ada Again",
		"branch":           "IT",
		"semester":         1,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "email_taken", body.Error.Code)

	rec, body = env.do(t, http.MethodPost, "/api/v1/auth/signin", "", map[string]string{
		"email":    "ada@example.com",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credentials", body.Error.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/auth/signin", "", map[string]string{
		"email":    "ada@example.com",
		"password": "password123",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/editor/two-sum", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, env.editors.Len())

	rec, _ = env.do(t, http.MethodPost, "/api/v1/auth/signout", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, env.editors.Len())

	rec, _ = env.do(t, http.MethodGet, "/api/v1/auth/session", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})
	token := env.signUp(t, "ada@example.com")

	rec, body := env.do(t, http.MethodPatch, "/api/v1/profile", token, map[string]interface{}{
		"bio":                   "Analytical engines",
		"programming_languages": " Go, Python ,, ",
		"career_interests":      []string{"compilers"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var user models.User
	require.NoError(t, json.Unmarshal(body.Data, &user))
	assert.Equal(t, "Analytical engines", user.Bio)
	assert.Equal(t, []string{"Go", "Python"}, user.ProgrammingLanguages)
	assert.Equal(t, []string{"compilers"}, user.CareerInterests)
	assert.Equal(t, models.BranchCSE, user.Branch)

	rec, body = env.do(t, http.MethodPatch, "/api/v1/profile", token, map[string]interface{}{
		"full_name": "   ",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", body.Error.Code)
}

func TestListChallenges(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})
	token := env.signUp(t, "ada@example.com")

	type listing struct {
		Challenges []*models.Challenge `json:"challenges"`
		Topics     []string            `json:"topics"`
		Total      int                 `json:"total"`
	}

	rec, body := env.do(t, http.MethodGet, "/api/v1/challenges?branch=IT", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got listing
	require.NoError(t, json.Unmarshal(body.Data, &got))
	require.Equal(t, 2, got.Total)
	assert.Equal(t, "two-sum", got.Challenges[0].ID)
	assert.Equal(t, "graph-bfs", got.Challenges[1].ID)
	assert.Equal(t, []string{"Arrays", "Graphs", "Signals"}, got.Topics)

	rec, body = env.do(t, http.MethodGet, "/api/v1/challenges?search=NYQUIST", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(body.Data, &got))
	require.Len(t, got.Challenges, 1)
	assert.Equal(t, "signal-sampling", got.Challenges[0].ID)

	rec, body = env.do(t, http.MethodGet, "/api/v1/challenges?difficulty=Impossible", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", body.Error.Code)
}

func TestGetChallenge(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})
	token := env.signUp(t, "ada@example.com")

	rec, _ := env.do(t, http.MethodGet, "/api/v1/challenges/two-sum", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body := env.do(t, http.MethodGet, "/api/v1/challenges/missing", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body.Error.Code)
}

func TestEditorFlow(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})
	token := env.signUp(t, "ada@example.com")

	rec, body := env.do(t, http.MethodPost, "/api/v1/editor/two-sum/submit", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "session_not_found", body.Error.Code)

	rec, body = env.do(t, http.MethodPost, "/api/v1/editor/missing", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "challenge_not_found", body.Error.Code)

	rec, body = env.do(t, http.MethodPost, "/api/v1/editor/two-sum", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var view editor.View
	require.NoError(t, json.Unmarshal(body.Data, &view))
	assert.Equal(t, editor.StateLoaded, view.State)
	assert.Equal(t, models.LanguageJavaScript, view.Language)
	assert.Equal(t, "function twoSum() {}", view.Code)

	rec, body = env.do(t, http.MethodPut, "/api/v1/editor/two-sum/language", token, map[string]string{"language": "java"})
	require.Equal(t, http.StatusOK, rec.Code)
	var switched struct {
		Switched bool        `json:"switched"`
		Session  editor.View `json:"session"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &switched))
	assert.False(t, switched.Switched)
	assert.Equal(t, models.LanguageJavaScript, switched.Session.Language)

	rec, _ = env.do(t, http.MethodPut, "/api/v1/editor/two-sum/language", token, map[string]string{"language": "cobol"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = env.do(t, http.MethodPut, "/api/v1/editor/two-sum/code", token, map[string]string{"code": "return [0, 1]"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(body.Data, &view))
	assert.Equal(t, editor.StateEditing, view.State)

	rec, body = env.do(t, http.MethodPost, "/api/v1/editor/two-sum/submit", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result editor.SubmitResult
	require.NoError(t, json.Unmarshal(body.Data, &result))
	assert.GreaterOrEqual(t, result.Score, 60)
	assert.Less(t, result.Score, 100)
	assert.Equal(t, grader.StatusForScore(result.Score), result.Status)
	assert.Contains(t, result.Output, "Test cases passed")

	rec, body = env.do(t, http.MethodGet, "/api/v1/progress", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var progress stats.ProgressView
	require.NoError(t, json.Unmarshal(body.Data, &progress))
	require.Len(t, progress.RecentSubmissions, 1)
	assert.Equal(t, "two-sum", progress.RecentSubmissions[0].ChallengeID)
	assert.Equal(t, 1, progress.Summary.Total)

	rec, body = env.do(t, http.MethodGet, "/api/v1/dashboard", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var dash stats.DashboardView
	require.NoError(t, json.Unmarshal(body.Data, &dash))
	assert.Equal(t, 1, dash.Stats.TotalAttempts)
	assert.Len(t, dash.Featured, 3)
}

func TestAskAndVoice(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})
	token := env.signUp(t, "ada@example.com")

	rec, _ := env.do(t, http.MethodPost, "/api/v1/editor/two-sum", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := env.do(t, http.MethodPost, "/api/v1/editor/two-sum/ask", token, map[string]string{"message": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", body.Error.Code)

	rec, body = env.do(t, http.MethodPost, "/api/v1/editor/two-sum/ask", token, map[string]string{
		"message":    "why does this fail?",
		"query_type": "debugging",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var answer map[string]string
	require.NoError(t, json.Unmarshal(body.Data, &answer))
	assert.Contains(t, assistant.Suggestions, answer["answer"])

	rec, body = env.do(t, http.MethodPost, "/api/v1/editor/two-sum/voice", token, nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, "unsupported_feature", body.Error.Code)
}

func TestAssistantWebSocket(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})
	token := env.signUp(t, "ada@example.com")

	rec, _ := env.do(t, http.MethodPost, "/api/v1/editor/two-sum", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	srv := httptest.NewServer(env.server.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/editor/two-sum/assistant/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var msg AssistantMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "connected", msg.Type)

	require.NoError(t, conn.WriteJSON(AssistantMessage{Type: "ask", Data: "help"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "answer", msg.Type)
	assert.Equal(t, models.QueryText, msg.QueryType)
	assert.Contains(t, assistant.Suggestions, msg.Data)

	require.NoError(t, conn.WriteJSON(AssistantMessage{Type: "dance"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
}

func TestAssistantWebSocketWithoutSession(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})
	token := env.signUp(t, "ada@example.com")

	srv := httptest.NewServer(env.server.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/editor/two-sum/assistant/ws?token=" + token
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})

	env.do(t, http.MethodGet, "/health", "", nil)
	env.do(t, http.MethodGet, "/api/v1/dashboard", "", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, `http_requests_total{method="GET",path="/health",status="200"} 1`)
	assert.Contains(t, out, `auth_rejections_total{reason="401_unauthorized"} 1`)
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(1, 2)
	server := NewServer(config.ServerConfig{}, Services{
		Repo:    storage.NewMemoryRepository(),
		Metrics: NewMetrics(prometheus.NewRegistry()),
		Limiter: limiter,
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signin", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests}, codes)

	assert.Equal(t, 1, limiter.Len())
	assert.Equal(t, 0, limiter.Sweep(context.Background()))

	limiter.now = func() time.Time { return time.Now().Add(4 * time.Minute) }
	assert.Equal(t, 1, limiter.Sweep(context.Background()))
	assert.Equal(t, 0, limiter.Len())
}

func TestStaticFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644))

	env := newTestEnv(t, config.ServerConfig{StaticDir: dir})

	for path, want := range map[string]string{
		"/":               "<html>app</html>",
		"/editor/two-sum": "<html>app</html>",
		"/progress":       "<html>app</html>",
		"/app.js":         "console.log(1)",
		"/no/such/page":   "<html>app</html>",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, want, rec.Body.String(), path)
	}

	rec, body := env.do(t, http.MethodGet, "/api/v1/nothing-here", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body.Error.Code)
}

func TestCORSCredentials(t *testing.T) {
	preflight := func(env *testEnv, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/challenges", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		rec := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rec, req)
		return rec
	}

	wildcard := newTestEnv(t, config.ServerConfig{AllowedOrigins: []string{"*"}})
	rec := preflight(wildcard, "https://elsewhere.example")
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))

	unset := newTestEnv(t, config.ServerConfig{})
	rec = preflight(unset, "https://elsewhere.example")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))

	explicit := newTestEnv(t, config.ServerConfig{AllowedOrigins: []string{"https://app.example"}})
	rec = preflight(explicit, "https://app.example")
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = preflight(explicit, "https://elsewhere.example")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
