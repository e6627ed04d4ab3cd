package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zhouzirui/z-tavern/relay/internal/model/chat"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Transcript as an append-only turn log. Save only
// inserts turns that are not stored yet; a new session truncates the log.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLite opens (or creates) the transcript database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS transcript_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		system_prompt TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS transcript_turns (
		seq INTEGER PRIMARY KEY,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// Save appends the turns of session that are missing from the log. If the
// stored log is not a prefix of session it is replaced.
func (s *SQLiteStore) Save(ctx context.Context, session chat.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stored, err := s.storedCount(ctx, tx, session)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	if stored < 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM transcript_turns`); err != nil {
			return fmt.Errorf("truncate turns: %w", err)
		}
		stored = 0
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transcript_meta (id, system_prompt, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET system_prompt = excluded.system_prompt, updated_at = excluded.updated_at`,
		session.SystemPrompt, now); err != nil {
		return fmt.Errorf("upsert meta: %w", err)
	}

	for i := stored; i < len(session.History); i++ {
		turn := session.History[i]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transcript_turns (seq, role, content, created_at) VALUES (?, ?, ?, ?)`,
			i+1, string(turn.Role), turn.Content, now); err != nil {
			return fmt.Errorf("insert turn %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transcript: %w", err)
	}
	return nil
}

// storedCount returns how many leading turns of session are already stored,
// or -1 when the stored log diverges and must be rewritten.
func (s *SQLiteStore) storedCount(ctx context.Context, tx *sql.Tx, session chat.Session) (int, error) {
	var prompt string
	err := tx.QueryRowContext(ctx, `SELECT system_prompt FROM transcript_meta WHERE id = 1`).Scan(&prompt)
	if errors.Is(err, sql.ErrNoRows) {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read meta: %w", err)
	}
	if prompt != session.SystemPrompt {
		return -1, nil
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM transcript_turns`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count turns: %w", err)
	}
	if count > len(session.History) {
		return -1, nil
	}
	if count == 0 {
		return 0, nil
	}

	var role, content string
	err = tx.QueryRowContext(ctx,
		`SELECT role, content FROM transcript_turns WHERE seq = ?`, count).Scan(&role, &content)
	if errors.Is(err, sql.ErrNoRows) {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read last turn: %w", err)
	}
	last := session.History[count-1]
	if role != string(last.Role) || content != last.Content {
		return -1, nil
	}
	return count, nil
}

// Load rebuilds the session from the log.
func (s *SQLiteStore) Load(ctx context.Context) (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prompt string
	err := s.db.QueryRowContext(ctx, `SELECT system_prompt FROM transcript_meta WHERE id = 1`).Scan(&prompt)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Session{}, ErrNoTranscript
	}
	if err != nil {
		return chat.Session{}, fmt.Errorf("read meta: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT role, content FROM transcript_turns ORDER BY seq`)
	if err != nil {
		return chat.Session{}, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	session := chat.NewSession(prompt)
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return chat.Session{}, fmt.Errorf("scan turn: %w", err)
		}
		turn := chat.Turn{Role: chat.Role(role), Content: content}
		if turn.Role != chat.RoleUser && turn.Role != chat.RoleAssistant {
			return chat.Session{}, fmt.Errorf("%w: unknown role %q", ErrMalformedTranscript, role)
		}
		session.History = append(session.History, turn)
	}
	if err := rows.Err(); err != nil {
		return chat.Session{}, fmt.Errorf("iterate turns: %w", err)
	}
	return session, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
