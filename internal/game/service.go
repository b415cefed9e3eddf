// Package game implements the question/answer exchange protocol and the
// session lifecycle rules around it. The Service validates and coordinates;
// durable state lives behind store.Repository and classification behind
// judge.Classifier, both injected.
package game

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/haigui-labs/soupserver/internal/domain"
	"github.com/haigui-labs/soupserver/internal/judge"
	"github.com/haigui-labs/soupserver/internal/store"
)

// Service coordinates sessions and exchanges for one repository and judge.
type Service struct {
	repo  store.Repository
	judge judge.Classifier
}

// NewService creates a game service.
func NewService(repo store.Repository, classifier judge.Classifier) *Service {
	return &Service{repo: repo, judge: classifier}
}

// CreateSession opens a new PLAYING session against a random active puzzle
// of the requested soup type.
func (s *Service) CreateSession(ctx context.Context, userID int64, soupType domain.SoupType, difficulty int) (*domain.Session, *domain.Puzzle, error) {
	if !soupType.Valid() {
		return nil, nil, Errf(CodeInvalidArgument, "invalid soup_type")
	}

	puzzle, err := s.repo.PickRandomPuzzle(ctx, soupType, difficulty)
	if err != nil {
		return nil, nil, wrap(CodeInternal, "failed to pick puzzle", err)
	}
	if puzzle == nil {
		return nil, nil, Errf(CodeNotFound, "no active puzzle for this soup type")
	}

	sess, err := s.repo.CreateSession(ctx, userID, puzzle.ID, soupType, puzzle.Title)
	if err != nil {
		return nil, nil, wrap(CodeInternal, "failed to create session", err)
	}
	slog.Info("Session created", "session_id", sess.ID, "user_id", userID, "puzzle_id", puzzle.ID, "soup_type", soupType)
	return sess, puzzle, nil
}

// GetSession returns a session and its puzzle for the owning user.
func (s *Service) GetSession(ctx context.Context, userID, sessionID int64) (*domain.Session, *domain.Puzzle, error) {
	return s.authorize(ctx, userID, sessionID)
}

// ListSessions returns the user's sessions, newest first.
func (s *Service) ListSessions(ctx context.Context, userID int64, limit int) ([]*domain.Session, error) {
	sessions, err := s.repo.ListSessionsByUser(ctx, userID, limit)
	if err != nil {
		return nil, wrap(CodeInternal, "failed to list sessions", err)
	}
	return sessions, nil
}

// ListMessages returns the session's history, oldest first, for the owner.
// afterID is a pagination cursor; 0 starts from the beginning.
func (s *Service) ListMessages(ctx context.Context, userID, sessionID, afterID int64, limit int) ([]*domain.Message, error) {
	if _, _, err := s.authorize(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	messages, err := s.repo.ListMessages(ctx, sessionID, afterID, limit)
	if err != nil {
		return nil, wrap(CodeInternal, "failed to list messages", err)
	}
	return messages, nil
}

// Reveal transitions a PLAYING session to REVEALED and returns the puzzle
// with its solution. Revealing an already-finished session is rejected.
func (s *Service) Reveal(ctx context.Context, userID, sessionID int64) (*domain.Session, *domain.Puzzle, error) {
	_, puzzle, err := s.authorize(ctx, userID, sessionID)
	if err != nil {
		return nil, nil, err
	}

	updated, err := s.repo.UpdateSessionStatus(ctx, sessionID, domain.StatusRevealed)
	if errors.Is(err, store.ErrIllegalTransition) {
		return nil, nil, Errf(CodeIllegalState, "session is no longer playing")
	}
	if err != nil {
		return nil, nil, wrap(CodeInternal, "failed to reveal", err)
	}
	slog.Info("Session revealed", "session_id", sessionID, "user_id", userID)
	return updated, puzzle, nil
}

// Quit transitions a PLAYING session to QUIT.
func (s *Service) Quit(ctx context.Context, userID, sessionID int64) (*domain.Session, error) {
	if _, _, err := s.authorize(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateSessionStatus(ctx, sessionID, domain.StatusQuit)
	if errors.Is(err, store.ErrIllegalTransition) {
		return nil, Errf(CodeIllegalState, "session is no longer playing")
	}
	if err != nil {
		return nil, wrap(CodeInternal, "failed to quit", err)
	}
	slog.Info("Session quit", "session_id", sessionID, "user_id", userID)
	return updated, nil
}

// BeginExchange validates a question submission and returns the ephemeral
// exchange context. All rejections happen here, before any write.
func (s *Service) BeginExchange(ctx context.Context, userID, sessionID int64, content string) (*Exchange, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, Errf(CodeInvalidArgument, "content is required")
	}

	sess, puzzle, err := s.authorize(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Accepting() {
		return nil, Errf(CodeIllegalState, "session is no longer playing")
	}

	return &Exchange{svc: s, session: sess, puzzle: puzzle, content: content}, nil
}

// authorize resolves a session and its puzzle, enforcing existence and
// ownership.
func (s *Service) authorize(ctx context.Context, userID, sessionID int64) (*domain.Session, *domain.Puzzle, error) {
	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, wrap(CodeInternal, "failed to load session", err)
	}
	if sess == nil {
		return nil, nil, Errf(CodeNotFound, "session not found")
	}
	if sess.UserID != userID {
		return nil, nil, Errf(CodeForbidden, "not your session")
	}

	puzzle, err := s.repo.GetPuzzle(ctx, sess.PuzzleID)
	if err != nil {
		return nil, nil, wrap(CodeInternal, "failed to load puzzle", err)
	}
	if puzzle == nil {
		return nil, nil, Errf(CodeInternal, "puzzle not found for session")
	}
	return sess, puzzle, nil
}
