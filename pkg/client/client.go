package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/terra-clan/codecrafters/internal/auth"
	"github.com/terra-clan/codecrafters/internal/editor"
	"github.com/terra-clan/codecrafters/internal/models"
	"github.com/terra-clan/codecrafters/internal/stats"
)

// Client is a Go SDK for the codecrafters API
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithToken starts the client with an existing session token
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// NewClient creates a new codecrafters client
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is a non-success response from the API
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s - %s", e.StatusCode, e.Code, e.Message)
}

// SignUpRequest holds the registration form
type SignUpRequest struct {
	Email           string        `json:"email"`
	Password        string        `json:"password"`
	ConfirmPassword string        `json:"confirm_password"`
	FullName        string        `json:"full_name"`
	Branch          models.Branch `json:"branch"`
	Semester        int           `json:"semester"`
}

// ProfileRequest is a partial profile update. Nil fields are left untouched.
type ProfileRequest struct {
	FullName             *string   `json:"full_name,omitempty"`
	Bio                  *string   `json:"bio,omitempty"`
	ProfilePictureURL    *string   `json:"profile_picture_url,omitempty"`
	ProgrammingLanguages *[]string `json:"programming_languages,omitempty"`
	CareerInterests      *[]string `json:"career_interests,omitempty"`
}

// ChallengeList is a filtered challenge listing
type ChallengeList struct {
	Challenges []*models.Challenge `json:"challenges"`
	Topics     []string            `json:"topics"`
	Total      int                 `json:"total"`
}

// LanguageSwitch reports whether a language switch took effect
type LanguageSwitch struct {
	Switched bool        `json:"switched"`
	Session  editor.View `json:"session"`
}

// Token returns the current session token
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// SignUp registers a user and keeps the returned session token
func (c *Client) SignUp(ctx context.Context, req SignUpRequest) (*auth.Session, error) {
	var sess auth.Session
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/signup", req, &sess); err != nil {
		return nil, err
	}
	c.setToken(sess.Token)
	return &sess, nil
}

// SignIn opens a session and keeps its token
func (c *Client) SignIn(ctx context.Context, email, password string) (*auth.Session, error) {
	req := map[string]string{"email": email, "password": password}

	var sess auth.Session
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/signin", req, &sess); err != nil {
		return nil, err
	}
	c.setToken(sess.Token)
	return &sess, nil
}

// SignOut revokes the current session
func (c *Client) SignOut(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/signout", nil, nil); err != nil {
		return err
	}
	c.setToken("")
	return nil
}

// Session returns the signed-in user's session
func (c *Client) Session(ctx context.Context) (*auth.Session, error) {
	var sess auth.Session
	if err := c.do(ctx, http.MethodGet, "/api/v1/auth/session", nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// UpdateProfile applies a partial profile update
func (c *Client) UpdateProfile(ctx context.Context, req ProfileRequest) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodPatch, "/api/v1/profile", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListChallenges retrieves the challenges matching filter
func (c *Client) ListChallenges(ctx context.Context, filter models.ChallengeFilter) (*ChallengeList, error) {
	q := url.Values{}
	if filter.Search != "" {
		q.Set("search", filter.Search)
	}
	if filter.Difficulty != "" {
		q.Set("difficulty", string(filter.Difficulty))
	}
	if filter.Branch != "" {
		q.Set("branch", string(filter.Branch))
	}
	if filter.Topic != "" {
		q.Set("topic", filter.Topic)
	}

	path := "/api/v1/challenges"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var list ChallengeList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetChallenge retrieves a challenge by ID
func (c *Client) GetChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	var challenge models.Challenge
	if err := c.do(ctx, http.MethodGet, "/api/v1/challenges/"+url.PathEscape(id), nil, &challenge); err != nil {
		return nil, err
	}
	return &challenge, nil
}

// Dashboard retrieves the dashboard aggregates
func (c *Client) Dashboard(ctx context.Context) (*stats.DashboardView, error) {
	var view stats.DashboardView
	if err := c.do(ctx, http.MethodGet, "/api/v1/dashboard", nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Progress retrieves the progress page aggregates
func (c *Client) Progress(ctx context.Context) (*stats.ProgressView, error) {
	var view stats.ProgressView
	if err := c.do(ctx, http.MethodGet, "/api/v1/progress", nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// OpenEditor loads a challenge into a fresh editor session
func (c *Client) OpenEditor(ctx context.Context, challengeID string) (*editor.View, error) {
	var view editor.View
	if err := c.do(ctx, http.MethodPost, editorPath(challengeID, ""), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// SetCode replaces the editor contents
func (c *Client) SetCode(ctx context.Context, challengeID, code string) (*editor.View, error) {
	var view editor.View
	if err := c.do(ctx, http.MethodPut, editorPath(challengeID, "/code"), map[string]string{"code": code}, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// SwitchLanguage swaps the editor to the starter code of lang
func (c *Client) SwitchLanguage(ctx context.Context, challengeID string, lang models.Language) (*LanguageSwitch, error) {
	var result LanguageSwitch
	req := map[string]models.Language{"language": lang}
	if err := c.do(ctx, http.MethodPut, editorPath(challengeID, "/language"), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Submit grades the editor contents and records progress
func (c *Client) Submit(ctx context.Context, challengeID string) (*editor.SubmitResult, error) {
	var result editor.SubmitResult
	if err := c.do(ctx, http.MethodPost, editorPath(challengeID, "/submit"), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Ask sends a question about the editor contents to the assistant
func (c *Client) Ask(ctx context.Context, challengeID, message string, queryType models.QueryType) (string, error) {
	req := map[string]string{"message": message, "query_type": string(queryType)}

	var result struct {
		Answer string `json:"answer"`
	}
	if err := c.do(ctx, http.MethodPost, editorPath(challengeID, "/ask"), req, &result); err != nil {
		return "", err
	}
	return result.Answer, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func editorPath(challengeID, suffix string) string {
	return "/api/v1/editor/" + url.PathEscape(challengeID) + suffix
}

// do performs an HTTP request and unwraps the response envelope into out
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var result struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(respBody, &result); err != nil {
		if resp.StatusCode >= 400 {
			return &APIError{StatusCode: resp.StatusCode, Code: "http_error", Message: string(respBody)}
		}
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success || resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if result.Error != nil {
			apiErr.Code = result.Error.Code
			apiErr.Message = result.Error.Message
		}
		return apiErr
	}

	if out != nil && len(result.Data) > 0 {
		if err := json.Unmarshal(result.Data, out); err != nil {
			return fmt.Errorf("failed to unmarshal response data: %w", err)
		}
	}
	return nil
}
