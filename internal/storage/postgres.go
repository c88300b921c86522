package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/codecrafters/internal/models"
)

// uniqueViolation is the SQLSTATE for unique constraint violations
const uniqueViolation = "23505"

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 5
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// --- Challenges ---

const challengeColumns = `id, title, description, difficulty, branch, topic, starter_code, test_cases, solution_code, created_at, updated_at`

// ListChallenges returns challenges in creation order. A non-positive limit returns all.
func (r *PostgresRepository) ListChallenges(ctx context.Context, limit int) ([]*models.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM coding_challenges ORDER BY created_at, id`
	args := make([]any, 0, 1)
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}
	defer rows.Close()

	challenges := make([]*models.Challenge, 0)
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		challenges = append(challenges, c)
	}

	return challenges, rows.Err()
}

// GetChallenge retrieves a challenge by ID
func (r *PostgresRepository) GetChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM coding_challenges WHERE id = $1`

	c, err := scanChallenge(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// UpsertChallenge inserts a challenge or replaces the existing row with the same ID
func (r *PostgresRepository) UpsertChallenge(ctx context.Context, c *models.Challenge) error {
	starterJSON, err := json.Marshal(c.StarterCode)
	if err != nil {
		return fmt.Errorf("failed to marshal starter code: %w", err)
	}

	testCasesJSON, err := json.Marshal(c.TestCases)
	if err != nil {
		return fmt.Errorf("failed to marshal test cases: %w", err)
	}

	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	query := `
		INSERT INTO coding_challenges (id, title, description, difficulty, branch, topic, starter_code, test_cases, solution_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title, description = EXCLUDED.description, difficulty = EXCLUDED.difficulty,
			branch = EXCLUDED.branch, topic = EXCLUDED.topic, starter_code = EXCLUDED.starter_code,
			test_cases = EXCLUDED.test_cases, solution_code = EXCLUDED.solution_code, updated_at = EXCLUDED.updated_at
	`

	_, err = r.pool.Exec(ctx, query,
		c.ID,
		c.Title,
		c.Description,
		string(c.Difficulty),
		string(c.Branch),
		c.Topic,
		starterJSON,
		testCasesJSON,
		nullString(c.SolutionCode),
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert challenge: %w", err)
	}

	return nil
}

func scanChallenge(row scanner) (*models.Challenge, error) {
	var c models.Challenge
	var difficulty, branch string
	var solution sql.NullString
	var starterJSON, testCasesJSON []byte

	err := row.Scan(
		&c.ID,
		&c.Title,
		&c.Description,
		&difficulty,
		&branch,
		&c.Topic,
		&starterJSON,
		&testCasesJSON,
		&solution,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan challenge: %w", err)
	}

	c.Difficulty = models.Difficulty(difficulty)
	c.Branch = models.Branch(branch)
	c.SolutionCode = solution.String

	var starter map[string]string
	if err := json.Unmarshal(starterJSON, &starter); err != nil {
		return nil, fmt.Errorf("failed to unmarshal starter code: %w", err)
	}
	c.StarterCode = starterCodeFromMap(c.ID, starter)

	if err := json.Unmarshal(testCasesJSON, &c.TestCases); err != nil {
		return nil, fmt.Errorf("failed to unmarshal test cases: %w", err)
	}

	return &c, nil
}

// starterCodeFromMap keeps only supported languages
func starterCodeFromMap(challengeID string, raw map[string]string) models.StarterCode {
	starter := make(models.StarterCode, len(raw))
	for key, code := range raw {
		lang := models.Language(key)
		if !lang.Valid() {
			slog.Warn("dropping starter code for unsupported language", "challenge", challengeID, "language", key)
			continue
		}
		starter[lang] = code
	}
	return starter
}

// --- Progress ---

const progressColumns = `id, user_id, challenge_id, status, score, attempts, time_spent_minutes, code_submitted, language, completed_at, created_at, updated_at`

// ListProgress returns all progress rows of a user
func (r *PostgresRepository) ListProgress(ctx context.Context, userID string) ([]*models.ProgressRecord, error) {
	query := `SELECT ` + progressColumns + ` FROM student_progress WHERE user_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}
	defer rows.Close()

	records := make([]*models.ProgressRecord, 0)
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, p)
	}

	return records, rows.Err()
}

// UpsertProgress merges a submission into the (user, challenge) progress row.
// Attempts and time spent accumulate; everything else is overwritten.
func (r *PostgresRepository) UpsertProgress(ctx context.Context, sub models.Submission) (*models.ProgressRecord, error) {
	submittedAt := sub.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now().UTC()
	}

	var completedAt *time.Time
	if sub.Status == models.ProgressCompleted {
		completedAt = &submittedAt
	}

	query := `
		INSERT INTO student_progress (id, user_id, challenge_id, status, score, attempts, time_spent_minutes, code_submitted, language, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (user_id, challenge_id) DO UPDATE
		SET status = EXCLUDED.status,
			score = EXCLUDED.score,
			attempts = student_progress.attempts + 1,
			time_spent_minutes = student_progress.time_spent_minutes + EXCLUDED.time_spent_minutes,
			code_submitted = EXCLUDED.code_submitted,
			language = EXCLUDED.language,
			completed_at = COALESCE(student_progress.completed_at, EXCLUDED.completed_at),
			updated_at = EXCLUDED.updated_at
		RETURNING ` + progressColumns

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := scanProgress(tx.QueryRow(ctx, query,
		uuid.New().String(),
		sub.UserID,
		sub.ChallengeID,
		string(sub.Status),
		sub.Score,
		sub.TimeSpentMinutes,
		nullString(sub.Code),
		nullString(string(sub.Language)),
		nullTime(completedAt),
		submittedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert progress: %w", err)
	}

	activity := `INSERT INTO submission_days (user_id, day) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := tx.Exec(ctx, activity, sub.UserID, ActivityDay(submittedAt)); err != nil {
		return nil, fmt.Errorf("failed to record activity: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit progress: %w", err)
	}

	return p, nil
}

// ListActivity returns the user's submission days in ascending order
func (r *PostgresRepository) ListActivity(ctx context.Context, userID string) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `SELECT day FROM submission_days WHERE user_id = $1 ORDER BY day`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	days := make([]time.Time, 0)
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("failed to scan activity day: %w", err)
		}
		days = append(days, ActivityDay(day))
	}

	return days, rows.Err()
}

func scanProgress(row scanner) (*models.ProgressRecord, error) {
	var p models.ProgressRecord
	var status string
	var code, language sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.ChallengeID,
		&status,
		&p.Score,
		&p.Attempts,
		&p.TimeSpentMinutes,
		&code,
		&language,
		&completedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan progress: %w", err)
	}

	p.Status = models.ProgressStatus(status)
	p.CodeSubmitted = code.String
	p.Language = models.Language(language.String)
	if completedAt.Valid {
		p.CompletedAt = &completedAt.Time
	}

	return &p, nil
}

// --- Achievements ---

// ListAchievements returns the achievement catalog
func (r *PostgresRepository) ListAchievements(ctx context.Context) ([]*models.Achievement, error) {
	query := `
		SELECT id, badge_name, description, icon_name, category, unlock_criteria, created_at
		FROM achievements
		ORDER BY created_at, id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	defer rows.Close()

	achievements := make([]*models.Achievement, 0)
	for rows.Next() {
		var a models.Achievement
		var criteriaJSON []byte

		if err := rows.Scan(&a.ID, &a.BadgeName, &a.Description, &a.IconName, &a.Category, &criteriaJSON, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}

		if len(criteriaJSON) > 0 {
			if err := json.Unmarshal(criteriaJSON, &a.UnlockCriteria); err != nil {
				return nil, fmt.Errorf("failed to unmarshal unlock criteria: %w", err)
			}
		}

		achievements = append(achievements, &a)
	}

	return achievements, rows.Err()
}

// UpsertAchievement inserts or replaces a catalog achievement
func (r *PostgresRepository) UpsertAchievement(ctx context.Context, a *models.Achievement) error {
	criteriaJSON, err := json.Marshal(a.UnlockCriteria)
	if err != nil {
		return fmt.Errorf("failed to marshal unlock criteria: %w", err)
	}

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO achievements (id, badge_name, description, icon_name, category, unlock_criteria, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET badge_name = EXCLUDED.badge_name, description = EXCLUDED.description, icon_name = EXCLUDED.icon_name,
			category = EXCLUDED.category, unlock_criteria = EXCLUDED.unlock_criteria
	`

	if _, err := r.pool.Exec(ctx, query, a.ID, a.BadgeName, a.Description, a.IconName, a.Category, criteriaJSON, a.CreatedAt); err != nil {
		return fmt.Errorf("failed to upsert achievement: %w", err)
	}

	return nil
}

// ListUserAchievements returns the achievements a user has earned
func (r *PostgresRepository) ListUserAchievements(ctx context.Context, userID string) ([]*models.UserAchievement, error) {
	query := `
		SELECT id, user_id, achievement_id, earned_at
		FROM user_achievements
		WHERE user_id = $1
		ORDER BY earned_at
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user achievements: %w", err)
	}
	defer rows.Close()

	earned := make([]*models.UserAchievement, 0)
	for rows.Next() {
		var ua models.UserAchievement
		if err := rows.Scan(&ua.ID, &ua.UserID, &ua.AchievementID, &ua.EarnedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user achievement: %w", err)
		}
		earned = append(earned, &ua)
	}

	return earned, rows.Err()
}

// --- Conversations ---

// InsertConversation stores an assistant exchange
func (r *PostgresRepository) InsertConversation(ctx context.Context, c *models.ConversationLog) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO ai_conversations (id, user_id, challenge_id, query_type, user_message, ai_response, code_context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		c.ID,
		c.UserID,
		nullString(c.ChallengeID),
		string(c.QueryType),
		c.UserMessage,
		c.AIResponse,
		nullString(c.CodeContext),
		c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}

	return nil
}

// --- Users ---

const userColumns = `id, email, password_hash, full_name, branch, semester, profile_picture_url, bio, programming_languages, career_interests, created_at, updated_at`

// CreateUser inserts a new user. Returns ErrDuplicateEmail if the email is taken.
func (r *PostgresRepository) CreateUser(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.pool.Exec(ctx, query,
		u.ID,
		u.Email,
		u.PasswordHash,
		u.FullName,
		string(u.Branch),
		u.Semester,
		nullString(u.ProfilePictureURL),
		u.Bio,
		nonNil(u.ProgrammingLanguages),
		nonNil(u.CareerInterests),
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUser retrieves a user by ID
func (r *PostgresRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	return r.getUser(ctx, "id", id)
}

// GetUserByEmail retrieves a user by email
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getUser(ctx, "email", email)
}

func (r *PostgresRepository) getUser(ctx context.Context, field, value string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s = $1`, userColumns, field)

	var u models.User
	var branch string
	var picture sql.NullString

	err := r.pool.QueryRow(ctx, query, value).Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.FullName,
		&branch,
		&u.Semester,
		&picture,
		&u.Bio,
		&u.ProgrammingLanguages,
		&u.CareerInterests,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	u.Branch = models.Branch(branch)
	u.ProfilePictureURL = picture.String

	return &u, nil
}

// UpdateUser writes the mutable profile fields of a user
func (r *PostgresRepository) UpdateUser(ctx context.Context, u *models.User) error {
	query := `
		UPDATE users
		SET full_name = $2, profile_picture_url = $3, bio = $4, programming_languages = $5, career_interests = $6, updated_at = $7
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		u.ID,
		u.FullName,
		nullString(u.ProfilePictureURL),
		u.Bio,
		nonNil(u.ProgrammingLanguages),
		nonNil(u.CareerInterests),
		u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
