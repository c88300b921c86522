package models

import (
	"time"
)

// ProgressStatus is the state of a user's latest attempt at a challenge
type ProgressStatus string

const (
	ProgressStarted   ProgressStatus = "started"
	ProgressCompleted ProgressStatus = "completed"
	ProgressFailed    ProgressStatus = "failed"
)

// ProgressRecord is a user's latest submission state for one challenge.
// One row exists per (user, challenge); later submissions overwrite it.
type ProgressRecord struct {
	ID               string         `json:"id"`
	UserID           string         `json:"user_id"`
	ChallengeID      string         `json:"challenge_id"`
	Status           ProgressStatus `json:"status"`
	Score            int            `json:"score"`
	Attempts         int            `json:"attempts"`
	TimeSpentMinutes int            `json:"time_spent_minutes"`
	CodeSubmitted    string         `json:"code_submitted,omitempty"`
	Language         Language       `json:"language,omitempty"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// IsCompleted returns true if the challenge was solved
func (p *ProgressRecord) IsCompleted() bool {
	return p.Status == ProgressCompleted
}

// Submission is what the editor writes when a solution is submitted.
// The repository merges it into the existing ProgressRecord.
type Submission struct {
	UserID           string
	ChallengeID      string
	Status           ProgressStatus
	Score            int
	TimeSpentMinutes int
	Code             string
	Language         Language
	SubmittedAt      time.Time
}
