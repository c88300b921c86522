package models

import (
	"time"
)

// QueryType tags how an assistant query was entered
type QueryType string

const (
	QueryVoice     QueryType = "voice"
	QueryText      QueryType = "text"
	QueryDebugging QueryType = "debugging"
)

// Valid reports whether q is a known query type
func (q QueryType) Valid() bool {
	return q == QueryVoice || q == QueryText || q == QueryDebugging
}

// ConversationLog records one assistant exchange. Write-only.
type ConversationLog struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ChallengeID string    `json:"challenge_id,omitempty"`
	QueryType   QueryType `json:"query_type"`
	UserMessage string    `json:"user_message"`
	AIResponse  string    `json:"ai_response"`
	CodeContext string    `json:"code_context,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
