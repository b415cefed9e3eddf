package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/haigui-labs/soupserver/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("close repository: %v", err)
		}
	})
	return repo
}

func createTestSession(t *testing.T, repo Repository) *domain.Session {
	t.Helper()
	ctx := context.Background()

	user, err := repo.CreateUser(ctx, "ext-test")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	puzzle := &domain.Puzzle{
		Title:    "Test Puzzle",
		SoupType: domain.SoupClear,
		Surface:  "surface text",
		Bottom:   "bottom text",
		Status:   domain.PuzzleActive,
	}
	if err := repo.CreatePuzzle(ctx, puzzle); err != nil {
		t.Fatalf("CreatePuzzle: %v", err)
	}
	sess, err := repo.CreateSession(ctx, user.ID, puzzle.ID, domain.SoupClear, "Test Puzzle")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return sess
}

func TestUserLifecycle(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	got, err := repo.GetUserByExternalID(ctx, "nobody")
	if err != nil {
		t.Fatalf("GetUserByExternalID: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for unknown user, got %+v", got)
	}

	created, err := repo.CreateUser(ctx, "device-123")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if created.ID == 0 {
		t.Error("created user has no ID")
	}

	got, err = repo.GetUserByExternalID(ctx, "device-123")
	if err != nil {
		t.Fatalf("GetUserByExternalID: %v", err)
	}
	if got == nil || got.ID != created.ID {
		t.Errorf("lookup = %+v, want id %d", got, created.ID)
	}
}

func TestCreateSessionStartsPlaying(t *testing.T) {
	repo := newTestStore(t)
	sess := createTestSession(t, repo)

	if sess.Status != domain.StatusPlaying {
		t.Errorf("status = %s, want PLAYING", sess.Status)
	}
	if sess.QuestionCount != 0 {
		t.Errorf("question_count = %d, want 0", sess.QuestionCount)
	}
	if sess.StartedAt == nil {
		t.Error("started_at not set")
	}
	if sess.EndedAt != nil {
		t.Error("ended_at set on a fresh session")
	}
}

func TestIncrementQuestionCount(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	sess := createTestSession(t, repo)

	for i := 0; i < 3; i++ {
		if err := repo.IncrementQuestionCount(ctx, sess.ID); err != nil {
			t.Fatalf("IncrementQuestionCount: %v", err)
		}
	}

	got, err := repo.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.QuestionCount != 3 {
		t.Errorf("question_count = %d, want 3", got.QuestionCount)
	}
}

func TestUpdateSessionStatusGuard(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	sess := createTestSession(t, repo)

	revealed, err := repo.UpdateSessionStatus(ctx, sess.ID, domain.StatusRevealed)
	if err != nil {
		t.Fatalf("UpdateSessionStatus: %v", err)
	}
	if revealed.Status != domain.StatusRevealed {
		t.Errorf("status = %s, want REVEALED", revealed.Status)
	}
	if revealed.EndedAt == nil {
		t.Error("ended_at not stamped on reveal")
	}

	// Revealing again must be rejected, not a no-op success.
	if _, err := repo.UpdateSessionStatus(ctx, sess.ID, domain.StatusRevealed); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("second reveal error = %v, want ErrIllegalTransition", err)
	}
	if _, err := repo.UpdateSessionStatus(ctx, sess.ID, domain.StatusQuit); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("quit after reveal error = %v, want ErrIllegalTransition", err)
	}
}

func TestUpdateSessionStatusRejectsNonTerminalTarget(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	sess := createTestSession(t, repo)

	if _, err := repo.UpdateSessionStatus(ctx, sess.ID, domain.StatusPlaying); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("transition to PLAYING error = %v, want ErrIllegalTransition", err)
	}
}

func TestMessageOrderPreserved(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	sess := createTestSession(t, repo)

	want := []struct {
		role     domain.MessageRole
		content  string
		category domain.AnswerCategory
	}{
		{domain.RoleUser, "Was the soup real?", ""},
		{domain.RoleJudge, "Yes", domain.AnswerYes},
		{domain.RoleUser, "Did he know?", ""},
		{domain.RoleJudge, "No", domain.AnswerNo},
	}
	for _, m := range want {
		if _, err := repo.AppendMessage(ctx, sess.ID, m.role, m.content, m.category); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	got, err := repo.ListMessages(ctx, sess.ID, 0, 100)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d", len(got), len(want))
	}
	for i, m := range want {
		if got[i].Role != m.role || got[i].Content != m.content || got[i].AnswerCategory != m.category {
			t.Errorf("message %d = %+v, want %+v", i, got[i], m)
		}
	}

	// Paging with the last seen id as cursor yields only what follows.
	rest, err := repo.ListMessages(ctx, sess.ID, got[1].ID, 100)
	if err != nil {
		t.Fatalf("ListMessages after cursor: %v", err)
	}
	if len(rest) != 2 || rest[0].ID != got[2].ID {
		t.Errorf("cursor page = %+v, want the last two messages", rest)
	}
}

func TestPickRandomPuzzleFilters(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	active := &domain.Puzzle{Title: "a", SoupType: domain.SoupRed, Difficulty: 2, Surface: "s", Bottom: "b", Status: domain.PuzzleActive}
	draft := &domain.Puzzle{Title: "d", SoupType: domain.SoupRed, Difficulty: 2, Surface: "s", Bottom: "b", Status: domain.PuzzleDraft}
	for _, p := range []*domain.Puzzle{active, draft} {
		if err := repo.CreatePuzzle(ctx, p); err != nil {
			t.Fatalf("CreatePuzzle: %v", err)
		}
	}

	got, err := repo.PickRandomPuzzle(ctx, domain.SoupRed, 0)
	if err != nil {
		t.Fatalf("PickRandomPuzzle: %v", err)
	}
	if got == nil || got.ID != active.ID {
		t.Errorf("picked %+v, want only the ACTIVE puzzle", got)
	}

	got, err = repo.PickRandomPuzzle(ctx, domain.SoupBlack, 0)
	if err != nil {
		t.Fatalf("PickRandomPuzzle: %v", err)
	}
	if got != nil {
		t.Errorf("picked %+v for empty soup type, want nil", got)
	}

	got, err = repo.PickRandomPuzzle(ctx, domain.SoupRed, 5)
	if err != nil {
		t.Fatalf("PickRandomPuzzle: %v", err)
	}
	if got != nil {
		t.Errorf("picked %+v for missing difficulty, want nil", got)
	}
}

func TestSeedPuzzlesOnlyOnEmptyTable(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	n, err := SeedPuzzles(ctx, repo, "")
	if err != nil {
		t.Fatalf("SeedPuzzles: %v", err)
	}
	if n == 0 {
		t.Fatal("expected builtin puzzles to be seeded")
	}

	again, err := SeedPuzzles(ctx, repo, "")
	if err != nil {
		t.Fatalf("SeedPuzzles second run: %v", err)
	}
	if again != 0 {
		t.Errorf("second seed inserted %d puzzles, want 0", again)
	}
}

func TestPuzzleHintListRoundTrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	p := &domain.Puzzle{
		Title:    "hints",
		SoupType: domain.SoupClear,
		Surface:  "s",
		Bottom:   "b",
		HintList: []string{"one", "two"},
		Status:   domain.PuzzleActive,
	}
	if err := repo.CreatePuzzle(ctx, p); err != nil {
		t.Fatalf("CreatePuzzle: %v", err)
	}

	got, err := repo.GetPuzzle(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPuzzle: %v", err)
	}
	if len(got.HintList) != 2 || got.HintList[0] != "one" {
		t.Errorf("hint list = %v, want [one two]", got.HintList)
	}
}
