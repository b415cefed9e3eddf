package domain

import (
	"time"
)

// MessageRole is the author of a message within a session.
type MessageRole string

const (
	// RoleUser marks a question asked by the player.
	RoleUser MessageRole = "USER"
	// RoleJudge marks an answer produced by the judge.
	RoleJudge MessageRole = "JUDGE"
)

// Message is one entry in a session's ordered, immutable history.
// AnswerCategory is only meaningful for JUDGE-authored messages.
type Message struct {
	ID             int64          `json:"id"`
	SessionID      int64          `json:"session_id"`
	Role           MessageRole    `json:"role"`
	Content        string         `json:"content"`
	AnswerCategory AnswerCategory `json:"answer_category,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
