// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/haigui-labs/soupserver/internal/domain"
)

// ErrIllegalTransition is returned by UpdateSessionStatus when the session
// is no longer in a state that permits the requested transition. The guard
// lives in the UPDATE itself so concurrent callers cannot race past it.
var ErrIllegalTransition = errors.New("session status transition not allowed")

// Repository defines the interface for persisting users, puzzles, sessions
// and message history. All calls are atomic and strongly consistent for a
// single session.
type Repository interface {
	// GetUserByExternalID retrieves a user by the opaque client-supplied ID.
	// Returns (nil, nil) when no such user exists.
	GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error)

	// CreateUser creates a user record for an external ID.
	CreateUser(ctx context.Context, externalID string) (*domain.User, error)

	// GetPuzzle retrieves a puzzle by ID. Returns (nil, nil) when missing.
	GetPuzzle(ctx context.Context, id int64) (*domain.Puzzle, error)

	// PickRandomPuzzle selects a random ACTIVE puzzle of the given soup type.
	// difficulty 0 means any difficulty. Returns (nil, nil) when none match.
	PickRandomPuzzle(ctx context.Context, soupType domain.SoupType, difficulty int) (*domain.Puzzle, error)

	// CreatePuzzle inserts a puzzle and fills in its assigned ID.
	CreatePuzzle(ctx context.Context, p *domain.Puzzle) error

	// CountPuzzles returns the total number of puzzles.
	CountPuzzles(ctx context.Context) (int64, error)

	// CreateSession opens a new PLAYING session against a puzzle.
	CreateSession(ctx context.Context, userID, puzzleID int64, soupType domain.SoupType, title string) (*domain.Session, error)

	// GetSession retrieves a session by ID. Returns (nil, nil) when missing.
	GetSession(ctx context.Context, id int64) (*domain.Session, error)

	// ListSessionsByUser returns the user's sessions, newest first.
	ListSessionsByUser(ctx context.Context, userID int64, limit int) ([]*domain.Session, error)

	// IncrementQuestionCount atomically advances the session's counter and
	// refreshes its updated timestamp.
	IncrementQuestionCount(ctx context.Context, sessionID int64) error

	// UpdateSessionStatus transitions a PLAYING session into the given
	// terminal status, stamping ended_at. Returns ErrIllegalTransition when
	// the session is not PLAYING.
	UpdateSessionStatus(ctx context.Context, sessionID int64, status domain.SessionStatus) (*domain.Session, error)

	// AppendMessage persists one message at the end of the session history.
	AppendMessage(ctx context.Context, sessionID int64, role domain.MessageRole, content string, category domain.AnswerCategory) (*domain.Message, error)

	// ListMessages returns up to limit messages with id greater than afterID,
	// in creation order. afterID 0 starts from the beginning.
	ListMessages(ctx context.Context, sessionID, afterID int64, limit int) ([]*domain.Message, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
