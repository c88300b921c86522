package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/terra-clan/codecrafters/internal/events"
	"github.com/terra-clan/codecrafters/internal/models"
	"github.com/terra-clan/codecrafters/internal/storage"
)

// MinPasswordLength is the shortest accepted password
const MinPasswordLength = 8

// Sign-up, sign-in and profile errors
var (
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidProfile     = errors.New("invalid profile")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthenticated    = errors.New("not authenticated")
)

// Users is the part of the repository the gateway uses
type Users interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
}

// Session is the resolved identity of a request
type Session struct {
	ID        string       `json:"-"`
	Token     string       `json:"token,omitempty"`
	FirstName string       `json:"first_name"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// Config holds gateway settings
type Config struct {
	Secret     string
	Issuer     string
	SessionTTL time.Duration
	BcryptCost int
}

// Service creates, resolves and revokes sessions and owns the user profile
type Service struct {
	users    Users
	sessions SessionStore
	tokens   *TokenIssuer
	events   events.Publisher
	ttl      time.Duration
	cost     int
	now      func() time.Time
}

// NewService creates a new auth service. pub may be nil.
func NewService(cfg Config, users Users, sessions SessionStore, pub events.Publisher) *Service {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	return &Service{
		users:    users,
		sessions: sessions,
		tokens:   NewTokenIssuer(cfg.Secret, cfg.Issuer),
		events:   pub,
		ttl:      ttl,
		cost:     cost,
		now:      time.Now,
	}
}

// ValidateSignUp runs the form checks in order, before any storage call
func ValidateSignUp(email, password, confirm string, profile models.Profile) error {
	if password != confirm {
		return ErrPasswordMismatch
	}
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if !validEmail(email) {
		return ErrInvalidEmail
	}
	if strings.TrimSpace(profile.FullName) == "" {
		return fmt.Errorf("%w: full name is required", ErrInvalidProfile)
	}
	if !profile.Branch.Valid() {
		return fmt.Errorf("%w: unknown branch %q", ErrInvalidProfile, profile.Branch)
	}
	if profile.Semester < 1 || profile.Semester > 8 {
		return fmt.Errorf("%w: semester must be between 1 and 8", ErrInvalidProfile)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// SignUp registers a user and opens a session
func (s *Service) SignUp(ctx context.Context, email, password, confirm string, profile models.Profile) (*Session, error) {
	if err := ValidateSignUp(email, password, confirm, profile); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	user := &models.User{
		ID:                   uuid.New().String(),
		Email:                normalizeEmail(email),
		FullName:             strings.TrimSpace(profile.FullName),
		Branch:               profile.Branch,
		Semester:             profile.Semester,
		ProgrammingLanguages: []string{},
		CareerInterests:      []string{},
		PasswordHash:         string(hash),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user registered", "user_id", user.ID, "branch", user.Branch)
	return s.openSession(ctx, user)
}

// SignIn checks credentials and opens a session
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.openSession(ctx, user)
}

func (s *Service) openSession(ctx context.Context, user *models.User) (*Session, error) {
	now := s.now()
	token, id, err := s.tokens.Issue(user.ID, user.Email, now, s.ttl)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Save(ctx, id, user.ID, s.ttl); err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	return &Session{
		ID:        id,
		Token:     token,
		FirstName: user.FirstName(),
		ExpiresAt: now.Add(s.ttl),
		User:      user,
	}, nil
}

// SignOut revokes the session behind token. Unknown or invalid tokens are ignored.
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.tokens.ParseUnverifiedExpiry(token)
	if err != nil {
		return nil
	}
	if err := s.sessions.Delete(ctx, claims.ID); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	slog.Info("user signed out", "user_id", claims.Subject)
	return nil
}

// Authenticate resolves a token into a live session
func (s *Service) Authenticate(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	userID, err := s.sessions.Lookup(ctx, claims.ID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	if userID != claims.Subject {
		return nil, ErrUnauthenticated
	}

	user, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}

	return &Session{
		ID:        claims.ID,
		FirstName: user.FirstName(),
		ExpiresAt: claims.ExpiresAt.Time,
		User:      user,
	}, nil
}

// UpdateProfile applies a partial profile change. Email, branch and semester are read-only.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update models.ProfileUpdate) (*models.User, error) {
	if update.FullName != nil {
		name := strings.TrimSpace(*update.FullName)
		if name == "" {
			return nil, fmt.Errorf("%w: full name is required", ErrInvalidProfile)
		}
		update.FullName = &name
	}
	if update.Bio != nil && len([]rune(*update.Bio)) > models.MaxBioLength {
		return nil, fmt.Errorf("%w: bio exceeds %d characters", ErrInvalidProfile, models.MaxBioLength)
	}
	if update.ProgrammingLanguages != nil {
		cleaned := cleanList(*update.ProgrammingLanguages)
		update.ProgrammingLanguages = &cleaned
	}
	if update.CareerInterests != nil {
		cleaned := cleanList(*update.CareerInterests)
		update.CareerInterests = &cleaned
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}

	update.Apply(user)
	user.UpdatedAt = s.now().UTC()
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	events.Emit(ctx, s.events, events.Event{
		Type:    events.ProfileUpdated,
		UserID:  user.ID,
		Payload: map[string]any{"fields": update.Fields()},
	})

	return user, nil
}

// SplitList splits a comma-separated input into trimmed, non-blank items
func SplitList(s string) []string {
	return cleanList(strings.Split(s, ","))
}

func cleanList(items []string) []string {
	result := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}
	return result
}
