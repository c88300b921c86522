package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/terra-clan/codecrafters/internal/models"
)

// ErrEmptyQuery is returned when a query has no message
var ErrEmptyQuery = errors.New("query message is empty")

// Query is a single request to the debugging assistant
type Query struct {
	Message     string
	Code        string
	ChallengeID string
	Type        models.QueryType
}

// Assistant answers debugging questions about a solution
type Assistant interface {
	Reply(ctx context.Context, q Query) (string, error)
}

// Transcriber turns recorded audio into a single final transcript
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// SystemPrompt instructs model-backed assistants
const SystemPrompt = `You are a debugging assistant on a coding practice platform for engineering students.
Give one short, concrete hint about the student's code: a bug, a missed edge case or a better approach.
Do not write the full solution. Answer in at most three sentences.`

// Suggestions are the canned hints used when no model is configured
var Suggestions = []string{
	"Your solution looks good! Consider optimizing the time complexity.",
	"I notice you're using a nested loop. Can you try a hash map approach instead?",
	"Great use of recursion! Make sure you're handling edge cases.",
	"Your algorithm is correct. Consider edge cases like empty arrays or null inputs.",
	"This approach will work but might exceed time limits for large inputs. Try a two-pointer technique.",
}

// Canned picks one of the fixed suggestions at random
type Canned struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewCanned creates a canned responder. A nil source seeds from the clock.
func NewCanned(rnd *rand.Rand) *Canned {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Canned{rnd: rnd}
}

// Reply returns a random suggestion
func (c *Canned) Reply(ctx context.Context, q Query) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	i := c.rnd.Intn(len(Suggestions))
	c.mu.Unlock()

	return Suggestions[i], nil
}

// Fallback answers with Primary and switches to Secondary when Primary fails
type Fallback struct {
	Primary   Assistant
	Secondary Assistant
}

// Reply implements Assistant
func (f *Fallback) Reply(ctx context.Context, q Query) (string, error) {
	answer, err := f.Primary.Reply(ctx, q)
	if err == nil && strings.TrimSpace(answer) != "" {
		return answer, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	slog.Warn("assistant failed, using fallback", "challenge_id", q.ChallengeID, "error", err)
	return f.Secondary.Reply(ctx, q)
}

// userPrompt joins the question and the code under discussion
func userPrompt(q Query) string {
	var b strings.Builder
	b.WriteString(q.Message)
	if strings.TrimSpace(q.Code) != "" {
		fmt.Fprintf(&b, "\n\nMy code:\n```\n%s\n```", q.Code)
	}
	return b.String()
}
