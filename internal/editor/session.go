package editor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/terra-clan/codecrafters/internal/assistant"
	"github.com/terra-clan/codecrafters/internal/events"
	"github.com/terra-clan/codecrafters/internal/grader"
	"github.com/terra-clan/codecrafters/internal/models"
	"github.com/terra-clan/codecrafters/internal/storage"
)

// Common errors
var (
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrNotLoaded         = errors.New("no challenge loaded")
	ErrSessionNotFound   = errors.New("editor session not found")
	ErrVoiceUnsupported  = errors.New("voice input is not supported")
)

// State is the lifecycle state of an editor session
type State string

const (
	StateIdle      State = "idle"
	StateLoaded    State = "loaded"
	StateEditing   State = "editing"
	StateSubmitted State = "submitted"
	StateNotFound  State = "not_found"
)

// Store is the part of the repository an editor session uses
type Store interface {
	GetChallenge(ctx context.Context, id string) (*models.Challenge, error)
	UpsertProgress(ctx context.Context, sub models.Submission) (*models.ProgressRecord, error)
	InsertConversation(ctx context.Context, c *models.ConversationLog) error
}

// Deps are the collaborators shared by all sessions.
// Transcriber and Events may be nil.
type Deps struct {
	Store       Store
	Grader      grader.Grader
	Assistant   assistant.Assistant
	Transcriber assistant.Transcriber
	Events      events.Publisher
}

// Session is one user's editor on one challenge
type Session struct {
	mu   sync.Mutex
	deps *Deps
	now  func() time.Time

	userID      string
	challengeID string
	state       State
	challenge   *models.Challenge
	language    models.Language
	code        string
	startedAt   time.Time
	lastResult  *grader.Result
	lastAnswer  string
}

// NewSession creates an idle session
func NewSession(deps *Deps, userID, challengeID string) *Session {
	return &Session{
		deps:        deps,
		now:         time.Now,
		userID:      userID,
		challengeID: challengeID,
		state:       StateIdle,
		language:    models.DefaultLanguage,
	}
}

// View is a snapshot of the session for display
type View struct {
	ChallengeID string            `json:"challenge_id"`
	State       State             `json:"state"`
	Challenge   *models.Challenge `json:"challenge,omitempty"`
	Language    models.Language   `json:"language"`
	Languages   []models.Language `json:"languages"`
	Code        string            `json:"code"`
	Output      string            `json:"output,omitempty"`
	Score       *int              `json:"score,omitempty"`
	Answer      string            `json:"answer,omitempty"`
}

// View returns the current snapshot
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ChallengeID: s.challengeID,
		State:       s.state,
		Challenge:   s.challenge,
		Language:    s.language,
		Languages:   []models.Language{},
		Code:        s.code,
		Answer:      s.lastAnswer,
	}
	if s.challenge != nil {
		v.Languages = s.challenge.StarterCode.Languages()
	}
	if s.lastResult != nil {
		score := s.lastResult.Score
		v.Output = s.lastResult.Output
		v.Score = &score
	}
	return v
}

// State returns the lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Load fetches the challenge and resets the editor to the starter code.
// An absent challenge moves the session to the terminal NotFound state.
func (s *Session) Load(ctx context.Context) error {
	challenge, err := s.deps.Store.GetChallenge(ctx, s.challengeID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if errors.Is(err, storage.ErrNotFound) {
		s.state = StateNotFound
		return ErrChallengeNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to fetch challenge: %w", err)
	}

	s.challenge = challenge
	s.language = models.DefaultLanguage
	s.code = challenge.StarterCode[s.language]
	s.state = StateLoaded
	s.startedAt = s.now()
	s.lastResult = nil
	s.lastAnswer = ""
	return nil
}

func (s *Session) loaded() bool {
	return s.challenge != nil && s.state != StateIdle && s.state != StateNotFound
}

// SetCode replaces the editor contents
func (s *Session) SetCode(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded() {
		return ErrNotLoaded
	}
	s.code = code
	s.state = StateEditing
	return nil
}

// SwitchLanguage swaps in the starter code of lang, discarding edits, and returns to Loaded.
// It returns false and changes nothing when the challenge has no starter code for lang.
func (s *Session) SwitchLanguage(lang models.Language) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded() {
		return false, ErrNotLoaded
	}
	if !s.challenge.StarterCode.Has(lang) {
		return false, nil
	}

	s.language = lang
	s.code = s.challenge.StarterCode[lang]
	s.state = StateLoaded
	return true, nil
}

// SubmitResult is the outcome of a submission
type SubmitResult struct {
	grader.Result
	Status   models.ProgressStatus  `json:"status"`
	Progress *models.ProgressRecord `json:"progress"`
}

// Submit grades the current code and records progress.
// The session stays readable and editable while grading runs.
func (s *Session) Submit(ctx context.Context) (*SubmitResult, error) {
	s.mu.Lock()
	if !s.loaded() {
		s.mu.Unlock()
		return nil, ErrNotLoaded
	}
	challenge, lang, code, startedAt := s.challenge, s.language, s.code, s.startedAt
	s.mu.Unlock()

	res, err := s.deps.Grader.Grade(ctx, challenge, lang, code)
	if err != nil {
		return nil, fmt.Errorf("failed to grade submission: %w", err)
	}

	now := s.now()
	minutes := int(now.Sub(startedAt).Minutes())
	if minutes < 1 {
		minutes = 1
	}

	status := grader.StatusForScore(res.Score)
	progress, err := s.deps.Store.UpsertProgress(ctx, models.Submission{
		UserID:           s.userID,
		ChallengeID:      challenge.ID,
		Status:           status,
		Score:            res.Score,
		TimeSpentMinutes: minutes,
		Code:             code,
		Language:         lang,
		SubmittedAt:      now.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save progress: %w", err)
	}

	s.mu.Lock()
	// Edits made while grading keep the session in the editing state
	if s.code == code && s.language == lang {
		s.state = StateSubmitted
	}
	s.lastResult = &res
	s.startedAt = now
	s.mu.Unlock()

	slog.Info("solution submitted",
		"user_id", s.userID,
		"challenge_id", challenge.ID,
		"language", lang,
		"score", res.Score,
		"status", status,
	)

	events.Emit(ctx, s.deps.Events, events.Event{
		Type:   events.ProgressSubmitted,
		UserID: s.userID,
		Payload: map[string]any{
			"challenge_id": challenge.ID,
			"score":        res.Score,
			"status":       status,
			"attempts":     progress.Attempts,
		},
		OccurredAt: now.UTC(),
	})

	return &SubmitResult{Result: res, Status: status, Progress: progress}, nil
}

// Ask sends a question about the current code to the assistant.
// Failing to persist the exchange is logged and does not fail the call.
func (s *Session) Ask(ctx context.Context, message string, queryType models.QueryType) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", assistant.ErrEmptyQuery
	}
	if !queryType.Valid() {
		queryType = models.QueryText
	}

	s.mu.Lock()
	if !s.loaded() {
		s.mu.Unlock()
		return "", ErrNotLoaded
	}
	code := s.code
	s.mu.Unlock()

	answer, err := s.deps.Assistant.Reply(ctx, assistant.Query{
		Message:     message,
		Code:        code,
		ChallengeID: s.challengeID,
		Type:        queryType,
	})
	if err != nil {
		return "", fmt.Errorf("assistant failed: %w", err)
	}

	s.mu.Lock()
	s.lastAnswer = answer
	s.mu.Unlock()

	entry := &models.ConversationLog{
		UserID:      s.userID,
		ChallengeID: s.challengeID,
		QueryType:   queryType,
		UserMessage: message,
		AIResponse:  answer,
		CodeContext: code,
	}
	if err := s.deps.Store.InsertConversation(ctx, entry); err != nil {
		slog.Error("failed to save conversation", "user_id", s.userID, "challenge_id", s.challengeID, "error", err)
	} else {
		events.Emit(ctx, s.deps.Events, events.Event{
			Type:   events.ConversationLogged,
			UserID: s.userID,
			Payload: map[string]any{
				"conversation_id": entry.ID,
				"challenge_id":    s.challengeID,
				"query_type":      queryType,
			},
		})
	}

	return answer, nil
}

// AskVoice transcribes recorded audio and asks the transcript as a voice query
func (s *Session) AskVoice(ctx context.Context, audio io.Reader, filename string) (transcript, answer string, err error) {
	if s.deps.Transcriber == nil {
		return "", "", ErrVoiceUnsupported
	}

	transcript, err = s.deps.Transcriber.Transcribe(ctx, audio, filename)
	if err != nil {
		return "", "", fmt.Errorf("failed to transcribe audio: %w", err)
	}

	answer, err = s.Ask(ctx, transcript, models.QueryVoice)
	if err != nil {
		return transcript, "", err
	}
	return transcript, answer, nil
}
