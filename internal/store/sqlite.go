package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/haigui-labs/soupserver/internal/domain"
	"github.com/haigui-labs/soupserver/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		external_id TEXT NOT NULL UNIQUE,
		nickname TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS puzzles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		soup_type TEXT NOT NULL,
		difficulty INTEGER NOT NULL DEFAULT 3,
		tags TEXT,
		surface TEXT NOT NULL,
		bottom TEXT NOT NULL,
		hint_list TEXT,
		language TEXT NOT NULL DEFAULT 'en',
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		source TEXT NOT NULL DEFAULT 'OFFICIAL',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_puzzles_soup_type ON puzzles(soup_type, status);

	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		puzzle_id INTEGER NOT NULL,
		soup_type TEXT NOT NULL,
		title TEXT,
		status TEXT NOT NULL DEFAULT 'PLAYING',
		question_count INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER,
		ended_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, created_at);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		answer_category TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetUserByExternalID retrieves a user by the opaque client-supplied ID.
func (s *SQLiteStore) GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	query := `SELECT id, external_id, nickname, created_at, updated_at FROM users WHERE external_id = ?`
	row := s.db.QueryRowContext(ctx, query, externalID)

	var user domain.User
	var nickname sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&user.ID, &user.ExternalID, &nickname, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.Nickname = nickname.String
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// CreateUser creates a user record for an external ID.
func (s *SQLiteStore) CreateUser(ctx context.Context, externalID string) (*domain.User, error) {
	now := time.Now()
	query := `INSERT INTO users (external_id, created_at, updated_at) VALUES (?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query, externalID, now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("user insert id: %w", err)
	}
	return &domain.User{
		ID:         id,
		ExternalID: externalID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

const puzzleColumns = `id, title, soup_type, difficulty, tags, surface, bottom, hint_list, language, status, source, created_at, updated_at`

func scanPuzzle(row interface{ Scan(...any) error }) (*domain.Puzzle, error) {
	var p domain.Puzzle
	var tags, hintList sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&p.ID, &p.Title, &p.SoupType, &p.Difficulty, &tags,
		&p.Surface, &p.Bottom, &hintList,
		&p.Language, &p.Status, &p.Source, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan puzzle row: %w", err)
	}

	p.Tags = decodeStringList(tags)
	p.HintList = decodeStringList(hintList)
	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return &p, nil
}

// decodeStringList parses a JSON string array column, tolerating NULL and
// malformed values as an absent list.
func decodeStringList(col sql.NullString) []string {
	if !col.Valid || col.String == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(col.String), &list); err != nil {
		slog.Warn("malformed string list column, ignoring", "error", err)
		return nil
	}
	return list
}

func encodeStringList(list []string) any {
	if len(list) == 0 {
		return nil
	}
	data, err := json.Marshal(list)
	if err != nil {
		return nil
	}
	return string(data)
}

// GetPuzzle retrieves a puzzle by ID.
func (s *SQLiteStore) GetPuzzle(ctx context.Context, id int64) (*domain.Puzzle, error) {
	query := `SELECT ` + puzzleColumns + ` FROM puzzles WHERE id = ?`
	return scanPuzzle(s.db.QueryRowContext(ctx, query, id))
}

// PickRandomPuzzle selects a random ACTIVE puzzle of the given soup type.
func (s *SQLiteStore) PickRandomPuzzle(ctx context.Context, soupType domain.SoupType, difficulty int) (*domain.Puzzle, error) {
	query := `SELECT ` + puzzleColumns + ` FROM puzzles WHERE soup_type = ? AND status = 'ACTIVE'`
	args := []any{soupType}
	if difficulty > 0 {
		query += ` AND difficulty = ?`
		args = append(args, difficulty)
	}
	query += ` ORDER BY RANDOM() LIMIT 1`
	return scanPuzzle(s.db.QueryRowContext(ctx, query, args...))
}

// CreatePuzzle inserts a puzzle and fills in its assigned ID.
func (s *SQLiteStore) CreatePuzzle(ctx context.Context, p *domain.Puzzle) error {
	now := time.Now()
	query := `
	INSERT INTO puzzles (title, soup_type, difficulty, tags, surface, bottom, hint_list, language, status, source, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := s.db.ExecContext(ctx, query,
		p.Title, p.SoupType, p.Difficulty, encodeStringList(p.Tags),
		p.Surface, p.Bottom, encodeStringList(p.HintList),
		p.Language, p.Status, p.Source, now.Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert puzzle: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("puzzle insert id: %w", err)
	}
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// CountPuzzles returns the total number of puzzles.
func (s *SQLiteStore) CountPuzzles(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM puzzles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count puzzles: %w", err)
	}
	return n, nil
}

const sessionColumns = `id, user_id, puzzle_id, soup_type, title, status, question_count, started_at, ended_at, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*domain.Session, error) {
	var sess domain.Session
	var title sql.NullString
	var startedAt, endedAt sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&sess.ID, &sess.UserID, &sess.PuzzleID, &sess.SoupType, &title,
		&sess.Status, &sess.QuestionCount, &startedAt, &endedAt,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	sess.Title = title.String
	if startedAt.Valid {
		ts := time.Unix(startedAt.Int64, 0)
		sess.StartedAt = &ts
	}
	if endedAt.Valid {
		ts := time.Unix(endedAt.Int64, 0)
		sess.EndedAt = &ts
	}
	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.UpdatedAt = time.Unix(updatedAt, 0)
	return &sess, nil
}

// CreateSession opens a new PLAYING session against a puzzle.
func (s *SQLiteStore) CreateSession(ctx context.Context, userID, puzzleID int64, soupType domain.SoupType, title string) (*domain.Session, error) {
	now := time.Now()
	query := `
	INSERT INTO sessions (user_id, puzzle_id, soup_type, title, status, started_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var titleArg any
	if title != "" {
		titleArg = title
	}

	res, err := s.db.ExecContext(ctx, query,
		userID, puzzleID, soupType, titleArg, domain.StatusPlaying,
		now.Unix(), now.Unix(), now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("session insert id: %w", err)
	}
	return s.GetSession(ctx, id)
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id int64) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`
	return scanSession(s.db.QueryRowContext(ctx, query, id))
}

// ListSessionsByUser returns the user's sessions, newest first.
func (s *SQLiteStore) ListSessionsByUser(ctx context.Context, userID int64, limit int) ([]*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	var sessions []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// execWithRetry runs a write statement, retrying with exponential backoff
// when SQLite reports a lock conflict. WAL mode makes these rare but not
// impossible under concurrent exchanges.
func (s *SQLiteStore) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	const maxRetries = 3
	baseDelay := 50 * time.Millisecond

	var result sql.Result
	var err error
	for i := 0; i < maxRetries; i++ {
		result, err = s.db.ExecContext(ctx, query, args...)
		if err == nil || !shared.IsSQLiteConflictError(err) || ctx.Err() != nil {
			return result, err
		}
		if i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("Database locked, retrying write", "attempt", i+1, "delay", delay)
			time.Sleep(delay)
		}
	}
	return result, err
}

// IncrementQuestionCount atomically advances the session's counter. The
// increment happens inside the UPDATE so concurrent exchanges on the same
// session cannot lose an update.
func (s *SQLiteStore) IncrementQuestionCount(ctx context.Context, sessionID int64) error {
	query := `UPDATE sessions SET question_count = question_count + 1, updated_at = ? WHERE id = ?`
	result, err := s.execWithRetry(ctx, query, time.Now().Unix(), sessionID)
	if err != nil {
		return fmt.Errorf("increment question count: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session %d not found", sessionID)
	}
	return nil
}

// UpdateSessionStatus transitions a PLAYING session into a terminal status.
// The WHERE clause carries the PLAYING guard so the transition is
// serializable at the database.
func (s *SQLiteStore) UpdateSessionStatus(ctx context.Context, sessionID int64, status domain.SessionStatus) (*domain.Session, error) {
	if !domain.StatusPlaying.CanTransitionTo(status) {
		return nil, ErrIllegalTransition
	}

	now := time.Now().Unix()
	query := `UPDATE sessions SET status = ?, ended_at = ?, updated_at = ? WHERE id = ? AND status = ?`
	result, err := s.execWithRetry(ctx, query, status, now, now, sessionID, domain.StatusPlaying)
	if err != nil {
		return nil, fmt.Errorf("update session status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, ErrIllegalTransition
	}
	return s.GetSession(ctx, sessionID)
}

// AppendMessage persists one message at the end of the session history.
func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID int64, role domain.MessageRole, content string, category domain.AnswerCategory) (*domain.Message, error) {
	now := time.Now()
	query := `INSERT INTO messages (session_id, role, content, answer_category, created_at) VALUES (?, ?, ?, ?, ?)`

	var categoryArg any
	if category != "" {
		categoryArg = string(category)
	}

	res, err := s.execWithRetry(ctx, query, sessionID, role, content, categoryArg, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message insert id: %w", err)
	}
	return &domain.Message{
		ID:             id,
		SessionID:      sessionID,
		Role:           role,
		Content:        content,
		AnswerCategory: category,
		CreatedAt:      now,
	}, nil
}

// ListMessages returns the session's messages in creation order, starting
// after afterID. Insertion IDs are monotonic, so ordering by id preserves
// creation order even for messages persisted within the same second, and
// the id doubles as a stable pagination cursor.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID, afterID int64, limit int) ([]*domain.Message, error) {
	query := `SELECT id, session_id, role, content, answer_category, created_at FROM messages WHERE session_id = ? AND id > ? ORDER BY id ASC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, sessionID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	var messages []*domain.Message
	for rows.Next() {
		var msg domain.Message
		var category sql.NullString
		var createdAt int64

		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &category, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}

		msg.AnswerCategory = domain.AnswerCategory(category.String)
		msg.CreatedAt = time.Unix(createdAt, 0)
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}
