package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/terra-clan/codecrafters/internal/models"
)

// ErrInvalidFilter is returned when a filter names an unknown difficulty or branch
var ErrInvalidFilter = errors.New("invalid challenge filter")

// Filter returns the challenges matching every set field of f, in source order.
//
// Search matches title or description case-insensitively. A branch filter keeps
// challenges of that branch and General challenges; filtering by General itself
// keeps everything.
func Filter(challenges []*models.Challenge, f models.ChallengeFilter) []*models.Challenge {
	result := make([]*models.Challenge, 0, len(challenges))
	if f.IsEmpty() {
		return append(result, challenges...)
	}

	search := strings.ToLower(f.Search)
	for _, c := range challenges {
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Title), search) &&
			!strings.Contains(strings.ToLower(c.Description), search) {
			continue
		}
		if f.Difficulty != "" && c.Difficulty != f.Difficulty {
			continue
		}
		if f.Branch != "" && f.Branch != models.BranchGeneral &&
			c.Branch != f.Branch && c.Branch != models.BranchGeneral {
			continue
		}
		if f.Topic != "" && c.Topic != f.Topic {
			continue
		}
		result = append(result, c)
	}
	return result
}

// Topics returns the distinct topics in order of first appearance
func Topics(challenges []*models.Challenge) []string {
	seen := make(map[string]bool)
	topics := make([]string, 0)
	for _, c := range challenges {
		if c.Topic == "" || seen[c.Topic] {
			continue
		}
		seen[c.Topic] = true
		topics = append(topics, c.Topic)
	}
	return topics
}

// ParseFilter builds a filter from the search, difficulty, branch and topic query parameters
func ParseFilter(q url.Values) (models.ChallengeFilter, error) {
	f := models.ChallengeFilter{
		Search:     q.Get("search"),
		Difficulty: models.Difficulty(q.Get("difficulty")),
		Branch:     models.Branch(q.Get("branch")),
		Topic:      q.Get("topic"),
	}

	if f.Difficulty != "" && !f.Difficulty.Valid() {
		return models.ChallengeFilter{}, fmt.Errorf("%w: unknown difficulty %q", ErrInvalidFilter, f.Difficulty)
	}
	if f.Branch != "" && f.Branch != models.BranchGeneral && !f.Branch.Valid() {
		return models.ChallengeFilter{}, fmt.Errorf("%w: unknown branch %q", ErrInvalidFilter, f.Branch)
	}

	return f, nil
}
