package domain

import (
	"time"
)

// SessionStatus is the lifecycle state of a game session.
type SessionStatus string

const (
	// StatusPlaying is the initial state; questions, reveal and quit are all legal.
	StatusPlaying SessionStatus = "PLAYING"
	// StatusRevealed means the solution has been exposed; terminal.
	StatusRevealed SessionStatus = "REVEALED"
	// StatusQuit means the player abandoned without revealing; terminal.
	StatusQuit SessionStatus = "QUIT"
)

// Valid reports whether s is one of the known statuses.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusPlaying, StatusRevealed, StatusQuit:
		return true
	}
	return false
}

// Terminal reports whether no further transitions exist out of s.
func (s SessionStatus) Terminal() bool {
	return s == StatusRevealed || s == StatusQuit
}

// CanTransitionTo reports whether the transition s -> next is legal.
// The only legal transitions are PLAYING -> REVEALED and PLAYING -> QUIT.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	return s == StatusPlaying && (next == StatusRevealed || next == StatusQuit)
}

// Session is one playthrough of a puzzle by a user.
type Session struct {
	ID            int64         `json:"id"`
	UserID        int64         `json:"user_id"`
	PuzzleID      int64         `json:"puzzle_id"`
	SoupType      SoupType      `json:"soup_type"`
	Title         string        `json:"title,omitempty"`
	Status        SessionStatus `json:"status"`
	QuestionCount int           `json:"question_count"`
	StartedAt     *time.Time    `json:"started_at,omitempty"`
	EndedAt       *time.Time    `json:"ended_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Accepting reports whether the session still accepts exchanges.
func (s *Session) Accepting() bool {
	return s.Status == StatusPlaying
}
