package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/codecrafters/internal/models"
)

// MemoryRepository is an in-process Repository used for development and tests.
// Returned records are copies; callers may modify them freely.
type MemoryRepository struct {
	mu               sync.RWMutex
	challenges       map[string]*models.Challenge
	progress         map[string]*models.ProgressRecord // key: user_id/challenge_id
	activity         map[string]map[time.Time]bool     // key: user_id
	achievements     map[string]*models.Achievement
	userAchievements []*models.UserAchievement
	conversations    []*models.ConversationLog
	users            map[string]*models.User
	now              func() time.Time
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		challenges:   make(map[string]*models.Challenge),
		progress:     make(map[string]*models.ProgressRecord),
		activity:     make(map[string]map[time.Time]bool),
		achievements: make(map[string]*models.Achievement),
		users:        make(map[string]*models.User),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Ping always succeeds
func (r *MemoryRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op
func (r *MemoryRepository) Close() error {
	return nil
}

// ListChallenges returns challenges ordered by creation time, then ID
func (r *MemoryRepository) ListChallenges(ctx context.Context, limit int) ([]*models.Challenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.Challenge, 0, len(r.challenges))
	for _, c := range r.challenges {
		result = append(result, copyChallenge(c))
	}

	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// GetChallenge retrieves a challenge by ID
func (r *MemoryRepository) GetChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.challenges[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyChallenge(c), nil
}

// UpsertChallenge stores a challenge, keeping the original creation time on replace
func (r *MemoryRepository) UpsertChallenge(ctx context.Context, c *models.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	stored := copyChallenge(c)
	if existing, ok := r.challenges[c.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	r.challenges[c.ID] = stored
	c.CreatedAt, c.UpdatedAt = stored.CreatedAt, stored.UpdatedAt
	return nil
}

// ListProgress returns all progress rows of a user ordered by creation time
func (r *MemoryRepository) ListProgress(ctx context.Context, userID string) ([]*models.ProgressRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.ProgressRecord, 0)
	for _, p := range r.progress {
		if p.UserID == userID {
			cp := *p
			result = append(result, &cp)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// UpsertProgress merges a submission into the (user, challenge) row
func (r *MemoryRepository) UpsertProgress(ctx context.Context, sub models.Submission) (*models.ProgressRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	at := sub.SubmittedAt
	if at.IsZero() {
		at = r.now()
	}

	key := sub.UserID + "/" + sub.ChallengeID
	p, ok := r.progress[key]
	if !ok {
		p = &models.ProgressRecord{
			ID:          uuid.New().String(),
			UserID:      sub.UserID,
			ChallengeID: sub.ChallengeID,
			CreatedAt:   at,
		}
		r.progress[key] = p
	}

	p.Status = sub.Status
	p.Score = sub.Score
	p.Attempts++
	p.TimeSpentMinutes += sub.TimeSpentMinutes
	p.CodeSubmitted = sub.Code
	p.Language = sub.Language
	p.UpdatedAt = at
	r.recordActivity(sub.UserID, at)
	if sub.Status == models.ProgressCompleted && p.CompletedAt == nil {
		completed := at
		p.CompletedAt = &completed
	}

	cp := *p
	return &cp, nil
}

func (r *MemoryRepository) recordActivity(userID string, at time.Time) {
	days, ok := r.activity[userID]
	if !ok {
		days = make(map[time.Time]bool)
		r.activity[userID] = days
	}
	days[ActivityDay(at)] = true
}

// ListActivity returns the user's submission days in ascending order
func (r *MemoryRepository) ListActivity(ctx context.Context, userID string) ([]time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]time.Time, 0, len(r.activity[userID]))
	for d := range r.activity[userID] {
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Before(result[j]) })
	return result, nil
}

// ListAchievements returns the achievement catalog
func (r *MemoryRepository) ListAchievements(ctx context.Context) ([]*models.Achievement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.Achievement, 0, len(r.achievements))
	for _, a := range r.achievements {
		cp := *a
		result = append(result, &cp)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// UpsertAchievement stores a catalog achievement
func (r *MemoryRepository) UpsertAchievement(ctx context.Context, a *models.Achievement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *a
	if existing, ok := r.achievements[a.ID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = r.now()
	}
	r.achievements[a.ID] = &cp
	return nil
}

// GrantAchievement records an earned achievement. Granting twice is a no-op.
func (r *MemoryRepository) GrantAchievement(userID, achievementID string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ua := range r.userAchievements {
		if ua.UserID == userID && ua.AchievementID == achievementID {
			return
		}
	}

	r.userAchievements = append(r.userAchievements, &models.UserAchievement{
		ID:            uuid.New().String(),
		UserID:        userID,
		AchievementID: achievementID,
		EarnedAt:      at,
	})
}

// ListUserAchievements returns the achievements a user has earned
func (r *MemoryRepository) ListUserAchievements(ctx context.Context, userID string) ([]*models.UserAchievement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.UserAchievement, 0)
	for _, ua := range r.userAchievements {
		if ua.UserID == userID {
			cp := *ua
			result = append(result, &cp)
		}
	}
	return result, nil
}

// InsertConversation stores an assistant exchange
func (r *MemoryRepository) InsertConversation(ctx context.Context, c *models.ConversationLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.now()
	}

	cp := *c
	r.conversations = append(r.conversations, &cp)
	return nil
}

// Conversations returns every stored exchange, oldest first
func (r *MemoryRepository) Conversations() []*models.ConversationLog {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.ConversationLog, len(r.conversations))
	for i, c := range r.conversations {
		cp := *c
		result[i] = &cp
	}
	return result
}

// CreateUser inserts a new user
func (r *MemoryRepository) CreateUser(ctx context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrDuplicateEmail
		}
	}

	r.users[u.ID] = copyUser(u)
	return nil
}

// GetUser retrieves a user by ID
func (r *MemoryRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(u), nil
}

// GetUserByEmail retrieves a user by email, case-insensitively
func (r *MemoryRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return copyUser(u), nil
		}
	}
	return nil, ErrNotFound
}

// UpdateUser replaces the mutable profile fields of a user
func (r *MemoryRepository) UpdateUser(ctx context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[u.ID]
	if !ok {
		return ErrNotFound
	}

	updated := copyUser(existing)
	updated.FullName = u.FullName
	updated.ProfilePictureURL = u.ProfilePictureURL
	updated.Bio = u.Bio
	updated.ProgrammingLanguages = append([]string(nil), u.ProgrammingLanguages...)
	updated.CareerInterests = append([]string(nil), u.CareerInterests...)
	updated.UpdatedAt = u.UpdatedAt

	r.users[u.ID] = updated
	return nil
}

func copyChallenge(c *models.Challenge) *models.Challenge {
	cp := *c
	cp.StarterCode = make(models.StarterCode, len(c.StarterCode))
	for lang, code := range c.StarterCode {
		cp.StarterCode[lang] = code
	}
	cp.TestCases = append([]models.TestCase(nil), c.TestCases...)
	return &cp
}

func copyUser(u *models.User) *models.User {
	cp := *u
	cp.ProgrammingLanguages = append([]string(nil), u.ProgrammingLanguages...)
	cp.CareerInterests = append([]string(nil), u.CareerInterests...)
	return &cp
}
