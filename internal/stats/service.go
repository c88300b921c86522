package stats

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/terra-clan/codecrafters/internal/models"
)

// Reader is the part of the repository the aggregators read from
type Reader interface {
	ListChallenges(ctx context.Context, limit int) ([]*models.Challenge, error)
	ListProgress(ctx context.Context, userID string) ([]*models.ProgressRecord, error)
	ListActivity(ctx context.Context, userID string) ([]time.Time, error)
	ListAchievements(ctx context.Context) ([]*models.Achievement, error)
	ListUserAchievements(ctx context.Context, userID string) ([]*models.UserAchievement, error)
}

// Service builds the dashboard and progress pages for a user.
// Repository failures are logged and replaced with empty collections.
type Service struct {
	repo Reader
	now  func() time.Time
}

// NewService creates a new stats service
func NewService(repo Reader) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

// DashboardView is the dashboard page payload
type DashboardView struct {
	Stats    DashboardStats      `json:"stats"`
	Featured []*models.Challenge `json:"featured"`
}

// Dashboard fetches the capped challenge list and the user's progress
func (s *Service) Dashboard(ctx context.Context, userID string) DashboardView {
	challenges, err := s.repo.ListChallenges(ctx, DashboardChallengeLimit)
	if err != nil {
		slog.Error("failed to fetch challenges", "user_id", userID, "error", err)
		challenges = []*models.Challenge{}
	}

	progress, err := s.repo.ListProgress(ctx, userID)
	if err != nil {
		slog.Error("failed to fetch progress", "user_id", userID, "error", err)
		progress = nil
	}

	activity := s.activity(ctx, userID, progress)

	if len(challenges) > DashboardChallengeLimit {
		challenges = challenges[:DashboardChallengeLimit]
	}

	return DashboardView{
		Stats:    Dashboard(progress, activity, s.now()),
		Featured: challenges,
	}
}

// ProgressView is the progress page payload
type ProgressView struct {
	Summary           Summary                  `json:"summary"`
	Streak            StreakInfo               `json:"streak"`
	Difficulty        []DifficultyCount        `json:"difficulty"`
	Topics            []TopicSkill             `json:"topics"`
	Badges            []Badge                  `json:"badges"`
	RecentSubmissions []*models.ProgressRecord `json:"recent_submissions"`
}

// Progress fetches progress, achievements, earned rows and challenges concurrently.
// Each fetch falls back to empty on error independently of the others.
func (s *Service) Progress(ctx context.Context, userID string) ProgressView {
	var (
		progress   []*models.ProgressRecord
		catalog    []*models.Achievement
		earned     []*models.UserAchievement
		challenges []*models.Challenge
	)

	// Fetch errors are swallowed per collection so one failure never cancels the rest
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if progress, err = s.repo.ListProgress(gctx, userID); err != nil {
			slog.Error("failed to fetch progress", "user_id", userID, "error", err)
			progress = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if catalog, err = s.repo.ListAchievements(gctx); err != nil {
			slog.Error("failed to fetch achievements", "error", err)
			catalog = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if earned, err = s.repo.ListUserAchievements(gctx, userID); err != nil {
			slog.Error("failed to fetch earned achievements", "user_id", userID, "error", err)
			earned = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if challenges, err = s.repo.ListChallenges(gctx, 0); err != nil {
			slog.Error("failed to fetch challenges", "error", err)
			challenges = nil
		}
		return nil
	})
	_ = g.Wait()

	activity := s.activity(ctx, userID, progress)

	return ProgressView{
		Summary:           Summarize(progress),
		Streak:            Streak(activity, s.now()),
		Difficulty:        DifficultyBreakdown(progress, challenges),
		Topics:            TopicSkills(progress, challenges),
		Badges:            Badges(catalog, earned),
		RecentSubmissions: RecentSubmissions(progress),
	}
}

// activity merges the stored submission days with the progress rows' last updates
func (s *Service) activity(ctx context.Context, userID string, progress []*models.ProgressRecord) []time.Time {
	days, err := s.repo.ListActivity(ctx, userID)
	if err != nil {
		slog.Error("failed to fetch activity", "user_id", userID, "error", err)
		days = nil
	}
	return append(ActivityDays(progress), days...)
}
