package stats

import (
	"math"
	"sort"
	"time"

	"github.com/terra-clan/codecrafters/internal/models"
)

const (
	// DashboardChallengeLimit caps the challenge fetch behind the dashboard
	DashboardChallengeLimit = 3

	// RecentSubmissionsLimit is the length of the recent submissions list
	RecentSubmissionsLimit = 10

	// difficultyBarStep is the bar width in percent contributed by one completion
	difficultyBarStep = 15
)

// DashboardStats are the headline numbers on the dashboard
type DashboardStats struct {
	CompletedChallenges int `json:"completed_challenges"`
	TotalAttempts       int `json:"total_attempts"`
	AvgScore            int `json:"avg_score"`
	CurrentStreak       int `json:"current_streak"`
}

// Dashboard computes the dashboard numbers from a user's progress rows and activity days
func Dashboard(progress []*models.ProgressRecord, activity []time.Time, now time.Time) DashboardStats {
	stats := DashboardStats{
		AvgScore:      meanScore(progress),
		CurrentStreak: Streak(activity, now).Current,
	}
	for _, p := range progress {
		if p.IsCompleted() {
			stats.CompletedChallenges++
		}
		stats.TotalAttempts += p.Attempts
	}
	return stats
}

// Summary is the top row of the progress page
type Summary struct {
	Completed        int `json:"completed"`
	Total            int `json:"total"`
	AvgScore         int `json:"avg_score"`
	TimeSpentMinutes int `json:"time_spent_minutes"`
}

// Summarize aggregates completion, score and time over all progress rows
func Summarize(progress []*models.ProgressRecord) Summary {
	s := Summary{
		Total:    len(progress),
		AvgScore: meanScore(progress),
	}
	for _, p := range progress {
		if p.IsCompleted() {
			s.Completed++
		}
		s.TimeSpentMinutes += p.TimeSpentMinutes
	}
	return s
}

// meanScore rounds half away from zero; 0 for no rows
func meanScore(progress []*models.ProgressRecord) int {
	if len(progress) == 0 {
		return 0
	}
	sum := 0
	for _, p := range progress {
		sum += p.Score
	}
	return int(math.Round(float64(sum) / float64(len(progress))))
}

// StreakInfo holds consecutive active days
type StreakInfo struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}

// ActivityDays returns the last submission time of every progress row.
// Rows only keep their latest update, so callers merge these with the stored activity log.
func ActivityDays(progress []*models.ProgressRecord) []time.Time {
	days := make([]time.Time, 0, len(progress))
	for _, p := range progress {
		at := p.UpdatedAt
		if at.IsZero() {
			at = p.CreatedAt
		}
		if !at.IsZero() {
			days = append(days, at)
		}
	}
	return days
}

// Streak counts consecutive UTC days with submission activity.
// The current streak ends today, or yesterday when nothing was submitted today.
func Streak(activity []time.Time, now time.Time) StreakInfo {
	days := make(map[time.Time]bool)
	for _, at := range activity {
		if !at.IsZero() {
			days[utcDay(at)] = true
		}
	}
	if len(days) == 0 {
		return StreakInfo{}
	}

	sorted := make([]time.Time, 0, len(days))
	for d := range days {
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	var info StreakInfo
	run := 0
	for i, d := range sorted {
		if i > 0 && sorted[i-1].AddDate(0, 0, 1).Equal(d) {
			run++
		} else {
			run = 1
		}
		if run > info.Longest {
			info.Longest = run
		}
	}

	day := utcDay(now)
	if !days[day] {
		day = day.AddDate(0, 0, -1)
	}
	for days[day] {
		info.Current++
		day = day.AddDate(0, 0, -1)
	}
	return info
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DifficultyCount is one bar of the difficulty breakdown
type DifficultyCount struct {
	Difficulty models.Difficulty `json:"difficulty"`
	Completed  int               `json:"completed"`
	Percentage int               `json:"percentage"`
}

// DifficultyBreakdown tallies completed challenges per difficulty tier.
// Progress rows for unknown challenges are not counted.
func DifficultyBreakdown(progress []*models.ProgressRecord, challenges []*models.Challenge) []DifficultyCount {
	byID := indexChallenges(challenges)

	counts := make(map[models.Difficulty]int, len(models.Difficulties))
	for _, p := range progress {
		if !p.IsCompleted() {
			continue
		}
		if c, ok := byID[p.ChallengeID]; ok {
			counts[c.Difficulty]++
		}
	}

	result := make([]DifficultyCount, 0, len(models.Difficulties))
	for _, d := range models.Difficulties {
		n := counts[d]
		result = append(result, DifficultyCount{
			Difficulty: d,
			Completed:  n,
			Percentage: min(n*difficultyBarStep, 100),
		})
	}
	return result
}

// TopicSkill is the mean score over attempted challenges of one topic
type TopicSkill struct {
	Topic     string `json:"topic"`
	Score     int    `json:"score"`
	Attempted int    `json:"attempted"`
}

// TopicSkills returns per-topic mean scores ordered by topic name.
// Topics without attempts are omitted.
func TopicSkills(progress []*models.ProgressRecord, challenges []*models.Challenge) []TopicSkill {
	byID := indexChallenges(challenges)

	type acc struct{ sum, n int }
	topics := make(map[string]*acc)
	for _, p := range progress {
		c, ok := byID[p.ChallengeID]
		if !ok || c.Topic == "" {
			continue
		}
		a := topics[c.Topic]
		if a == nil {
			a = &acc{}
			topics[c.Topic] = a
		}
		a.sum += p.Score
		a.n++
	}

	result := make([]TopicSkill, 0, len(topics))
	for topic, a := range topics {
		result = append(result, TopicSkill{
			Topic:     topic,
			Score:     int(math.Round(float64(a.sum) / float64(a.n))),
			Attempted: a.n,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Topic < result[j].Topic })
	return result
}

func indexChallenges(challenges []*models.Challenge) map[string]*models.Challenge {
	byID := make(map[string]*models.Challenge, len(challenges))
	for _, c := range challenges {
		byID[c.ID] = c
	}
	return byID
}

// Badge is a catalog achievement with the user's earned state
type Badge struct {
	*models.Achievement
	Earned   bool       `json:"earned"`
	EarnedAt *time.Time `json:"earned_at,omitempty"`
}

// Badges marks each catalog achievement earned iff its ID is in the earned set.
// Catalog order is preserved.
func Badges(catalog []*models.Achievement, earned []*models.UserAchievement) []Badge {
	earnedAt := make(map[string]time.Time, len(earned))
	for _, ua := range earned {
		earnedAt[ua.AchievementID] = ua.EarnedAt
	}

	result := make([]Badge, 0, len(catalog))
	for _, a := range catalog {
		b := Badge{Achievement: a}
		if at, ok := earnedAt[a.ID]; ok {
			b.Earned = true
			b.EarnedAt = &at
		}
		result = append(result, b)
	}
	return result
}

// RecentSubmissions returns up to 10 progress rows, newest first.
// Rows with equal timestamps keep their input order. The input is not modified.
func RecentSubmissions(progress []*models.ProgressRecord) []*models.ProgressRecord {
	sorted := make([]*models.ProgressRecord, len(progress))
	copy(sorted, progress)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	if len(sorted) > RecentSubmissionsLimit {
		sorted = sorted[:RecentSubmissionsLimit]
	}
	return sorted
}
