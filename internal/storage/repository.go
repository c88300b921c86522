package storage

import (
	"context"
	"errors"
	"time"

	"github.com/terra-clan/codecrafters/internal/models"
)

// Common errors
var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

// Repository defines the table API the platform reads and writes.
// Lookups of a single record return ErrNotFound when absent.
type Repository interface {
	// Challenges
	ListChallenges(ctx context.Context, limit int) ([]*models.Challenge, error)
	GetChallenge(ctx context.Context, id string) (*models.Challenge, error)
	UpsertChallenge(ctx context.Context, c *models.Challenge) error

	// Progress
	ListProgress(ctx context.Context, userID string) ([]*models.ProgressRecord, error)
	UpsertProgress(ctx context.Context, sub models.Submission) (*models.ProgressRecord, error)
	// ListActivity returns the distinct UTC days on which the user submitted anything
	ListActivity(ctx context.Context, userID string) ([]time.Time, error)

	// Achievements
	ListAchievements(ctx context.Context) ([]*models.Achievement, error)
	UpsertAchievement(ctx context.Context, a *models.Achievement) error
	ListUserAchievements(ctx context.Context, userID string) ([]*models.UserAchievement, error)

	// Conversations
	InsertConversation(ctx context.Context, c *models.ConversationLog) error

	// Users
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error

	// Health
	Ping(ctx context.Context) error
	Close() error
}

// ActivityDay truncates t to midnight of its UTC calendar day
func ActivityDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
