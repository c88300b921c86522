package grader

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/terra-clan/codecrafters/internal/models"
)

// PassingScore is the lowest score that completes a challenge
const PassingScore = 80

// Result is the outcome of grading one submission
type Result struct {
	Score  int    `json:"score"`
	Output string `json:"output"`
	Passed int    `json:"passed"`
	Total  int    `json:"total"`
}

// Grader scores submitted code against a challenge
type Grader interface {
	Grade(ctx context.Context, challenge *models.Challenge, lang models.Language, code string) (Result, error)
}

// StatusForScore maps a score to the progress status it records
func StatusForScore(score int) models.ProgressStatus {
	if score >= PassingScore {
		return models.ProgressCompleted
	}
	return models.ProgressStarted
}

// PlaceholderGrader does not run code. It draws a score uniformly from [60,100).
type PlaceholderGrader struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewPlaceholderGrader creates a placeholder grader. A nil source seeds from the clock.
func NewPlaceholderGrader(rnd *rand.Rand) *PlaceholderGrader {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &PlaceholderGrader{rnd: rnd}
}

// Grade returns a random score in [60,100)
func (g *PlaceholderGrader) Grade(ctx context.Context, challenge *models.Challenge, lang models.Language, code string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	g.mu.Lock()
	score := 60 + g.rnd.Intn(40)
	g.mu.Unlock()

	return Result{
		Score:  score,
		Output: fmt.Sprintf("✓ Test cases passed!\nScore: %d%%", score),
		Total:  len(challenge.TestCases),
	}, nil
}
