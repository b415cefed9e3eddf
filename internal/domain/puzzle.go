package domain

import (
	"time"
)

// SoupType is the puzzle category tag. Cosmetic for the exchange protocol,
// but used to pick a random puzzle when a session is opened.
type SoupType string

const (
	SoupClear SoupType = "CLEAR"
	SoupRed   SoupType = "RED"
	SoupBlack SoupType = "BLACK"
)

// Valid reports whether t is a known soup type.
func (t SoupType) Valid() bool {
	switch t {
	case SoupClear, SoupRed, SoupBlack:
		return true
	}
	return false
}

// PuzzleStatus marks whether a puzzle can be served to new sessions.
type PuzzleStatus string

const (
	PuzzleActive   PuzzleStatus = "ACTIVE"
	PuzzleInactive PuzzleStatus = "INACTIVE"
	PuzzleDraft    PuzzleStatus = "DRAFT"
)

// Puzzle is a lateral-thinking scenario. Surface is the public prompt shown
// to the player; Bottom is the hidden solution and must never leave the
// server while the owning session is still PLAYING.
type Puzzle struct {
	ID         int64        `json:"id"`
	Title      string       `json:"title"`
	SoupType   SoupType     `json:"soup_type"`
	Difficulty int          `json:"difficulty"`
	Tags       []string     `json:"tags,omitempty"`
	Surface    string       `json:"surface"`
	Bottom     string       `json:"-"`
	HintList   []string     `json:"-"`
	Language   string       `json:"language"`
	Status     PuzzleStatus `json:"status"`
	Source     string       `json:"source"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}
