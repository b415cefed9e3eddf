// Package domain contains core domain types for the puzzle game.
package domain

import (
	"time"
)

// User represents a player identified by an opaque client-supplied ID.
type User struct {
	ID         int64     `json:"id"`
	ExternalID string    `json:"external_id"`
	Nickname   string    `json:"nickname,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
