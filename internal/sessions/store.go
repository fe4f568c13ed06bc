// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sessions persists learner conversations and the expressions
// extracted from them in a SQLite database with a full-text index.
package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/expression-learner/pkg/types"
)

const (
	defaultPath       = "data/sessions.db"
	defaultMaxResults = 20

	// timeLayout has a fixed-width fraction so stored timestamps sort
	// lexically in time order.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

var (
	ErrNotFound       = errors.New("session not found")
	ErrInvalidVariant = errors.New("invalid variant")
)

// Store manages the session database.
type Store struct {
	db         *sql.DB
	maxResults int

	// fts is false when the SQLite build lacks FTS5; searches then fall
	// back to LIKE matching.
	fts bool

	now func() time.Time
}

// Open opens or creates the session database at cfg.Path and creates the
// schema if it does not exist.
func Open(cfg types.StoreConfig) (*Store, error) {
	path := cfg.Path
	if path == "" {
		path = defaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	s := &Store{
		db:         db,
		maxResults: maxResults,
		now:        func() time.Time { return time.Now().UTC() },
	}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// FullText reports whether searches use the FTS5 index.
func (s *Store) FullText() bool { return s.fts }

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			variant TEXT NOT NULL,
			topic TEXT NOT NULL DEFAULT '',
			turn_count INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (session_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS expressions (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			turn INTEGER NOT NULL,
			phrase TEXT NOT NULL,
			meaning TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_expressions_session ON expressions(session_id, turn)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='expressions_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}
	if ftsExists > 0 {
		s.fts = true
		return nil
	}

	if _, err := s.db.Exec(
		`CREATE VIRTUAL TABLE expressions_fts USING fts5(phrase, meaning, content=expressions, content_rowid=rowid)`,
	); err != nil {
		// Built without the sqlite_fts5 tag.
		return nil
	}

	triggers := []string{
		`CREATE TRIGGER expressions_ai AFTER INSERT ON expressions BEGIN
			INSERT INTO expressions_fts(rowid, phrase, meaning) VALUES (new.rowid, new.phrase, new.meaning);
		END`,
		`CREATE TRIGGER expressions_ad AFTER DELETE ON expressions BEGIN
			INSERT INTO expressions_fts(expressions_fts, rowid, phrase, meaning) VALUES('delete', old.rowid, old.phrase, old.meaning);
		END`,
		`CREATE TRIGGER expressions_au AFTER UPDATE ON expressions BEGIN
			INSERT INTO expressions_fts(expressions_fts, rowid, phrase, meaning) VALUES('delete', old.rowid, old.phrase, old.meaning);
			INSERT INTO expressions_fts(rowid, phrase, meaning) VALUES (new.rowid, new.phrase, new.meaning);
		END`,
	}
	for _, stmt := range triggers {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating FTS infrastructure: %w", err)
		}
	}
	s.fts = true
	return nil
}

// Create starts a new session for variant.
func (s *Store) Create(ctx context.Context, variant types.Variant) (types.Session, error) {
	if !variant.Valid() {
		return types.Session{}, fmt.Errorf("%w: %q", ErrInvalidVariant, variant)
	}

	sess := types.Session{
		ID:        uuid.NewString(),
		Variant:   variant,
		CreatedAt: s.now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, variant, created_at) VALUES (?, ?, ?)`,
		sess.ID, string(sess.Variant), formatTime(sess.CreatedAt),
	)
	if err != nil {
		return types.Session{}, fmt.Errorf("inserting session: %w", err)
	}
	return sess, nil
}

// Get loads a session with its message history and the expressions of its
// most recent turn.
func (s *Store) Get(ctx context.Context, id string) (types.Session, error) {
	sess, err := s.header(ctx, id)
	if err != nil {
		return types.Session{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM messages WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return types.Session{}, fmt.Errorf("loading messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m types.Message
		var role, created string
		if err := rows.Scan(&role, &m.Content, &created); err != nil {
			return types.Session{}, fmt.Errorf("scanning message: %w", err)
		}
		m.Role = types.Role(role)
		m.Timestamp = parseTime(created)
		sess.Messages = append(sess.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return types.Session{}, err
	}

	if sess.TurnCount > 0 {
		sess.LastExpressions, err = s.turnExpressions(ctx, id, sess.TurnCount)
		if err != nil {
			return types.Session{}, err
		}
	}
	return sess, nil
}

func (s *Store) header(ctx context.Context, id string) (types.Session, error) {
	var sess types.Session
	var variant, created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, variant, topic, turn_count, created_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &variant, &sess.Topic, &sess.TurnCount, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return types.Session{}, fmt.Errorf("looking up session: %w", err)
	}
	sess.Variant = types.Variant(variant)
	sess.CreatedAt = parseTime(created)
	return sess, nil
}

func (s *Store) turnExpressions(ctx context.Context, id string, turn int) ([]types.Expression, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT phrase, meaning FROM expressions WHERE session_id = ? AND turn = ? ORDER BY rowid`, id, turn)
	if err != nil {
		return nil, fmt.Errorf("loading expressions: %w", err)
	}
	defer rows.Close()

	var out []types.Expression
	for rows.Next() {
		var e types.Expression
		if err := rows.Scan(&e.Phrase, &e.Meaning); err != nil {
			return nil, fmt.Errorf("scanning expression: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SetTopic replaces the discussion topic of a session.
func (s *Store) SetTopic(ctx context.Context, id, topic string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET topic = ? WHERE id = ?`, topic, id)
	if err != nil {
		return fmt.Errorf("updating topic: %w", err)
	}
	return requireRow(res, id)
}

// AppendMessage adds a message to the end of a session's history.
func (s *Store) AppendMessage(ctx context.Context, id string, msg types.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.appendMessage(ctx, tx, id, msg); err != nil {
		return err
	}
	return tx.Commit()
}

// CompleteTurn records the user message, the assistant reply and the
// expressions extracted from it as one turn, and returns the new turn
// count. Nothing is written unless the whole turn is.
func (s *Store) CompleteTurn(ctx context.Context, id string, user types.Message, reply string, exprs []types.Expression) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE sessions SET turn_count = turn_count + 1 WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("incrementing turn count: %w", err)
	}
	if err := requireRow(res, id); err != nil {
		return 0, err
	}

	var turn int
	if err := tx.QueryRowContext(ctx, `SELECT turn_count FROM sessions WHERE id = ?`, id).Scan(&turn); err != nil {
		return 0, fmt.Errorf("reading turn count: %w", err)
	}

	now := s.now()
	user.Role = types.RoleUser
	if user.Timestamp.IsZero() {
		user.Timestamp = now
	}
	if err := s.appendMessage(ctx, tx, id, user); err != nil {
		return 0, err
	}
	if err := s.appendMessage(ctx, tx, id, types.Message{Role: types.RoleAssistant, Content: reply, Timestamp: now}); err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO expressions (session_id, turn, phrase, meaning, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range exprs {
		if _, err := stmt.ExecContext(ctx, id, turn, e.Phrase, e.Meaning, formatTime(now)); err != nil {
			return 0, fmt.Errorf("inserting expression %q: %w", e.Phrase, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing turn: %w", err)
	}
	return turn, nil
}

func (s *Store) appendMessage(ctx context.Context, tx *sql.Tx, id string, msg types.Message) error {
	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM sessions WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("looking up session: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO messages (session_id, seq, role, content, created_at)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?), ?, ?, ?)`,
		id, id, string(msg.Role), msg.Content, formatTime(ts),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// List returns every session without message history, newest first.
func (s *Store) List(ctx context.Context) ([]types.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, variant, topic, turn_count, created_at FROM sessions ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []types.Session
	for rows.Next() {
		var sess types.Session
		var variant, created string
		if err := rows.Scan(&sess.ID, &variant, &sess.Topic, &sess.TurnCount, &created); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sess.Variant = types.Variant(variant)
		sess.CreatedAt = parseTime(created)
		out = append(out, sess)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime also accepts RFC 3339 timestamps with a trimmed fraction.
func parseTime(v string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, v)
	return t
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
