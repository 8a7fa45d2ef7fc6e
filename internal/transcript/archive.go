package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Archive is a SQLite-backed transcript store. It implements Sink.
type Archive struct {
	db *sql.DB
}

// ArchivedSentence is one stored transcript row
type ArchivedSentence struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Language  string    `json:"language,omitempty"`
	EmittedAt time.Time `json:"emitted_at"`
}

// OpenArchive opens (creating if needed) the transcript archive at path
func OpenArchive(ctx context.Context, path string) (*Archive, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	a := &Archive{db: db}

	if err := a.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return a, nil
}

func (a *Archive) initSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS sentences (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	text       TEXT NOT NULL,
	language   TEXT NOT NULL DEFAULT '',
	emitted_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sentences_session ON sentences(session_id, id);
`

	if _, err := a.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	return nil
}

// Emit stores one sentence
func (a *Archive) Emit(ctx context.Context, sessionID string, s Sentence) error {
	emittedAt := s.EmittedAt
	if emittedAt.IsZero() {
		emittedAt = time.Now()
	}

	_, err := a.db.ExecContext(ctx,
		`INSERT INTO sentences (session_id, text, language, emitted_at) VALUES (?, ?, ?, ?)`,
		sessionID, s.Text, s.Language, emittedAt)
	if err != nil {
		return fmt.Errorf("insert sentence: %w", err)
	}

	return nil
}

// Sentences returns all stored sentences for a session in emission order
func (a *Archive) Sentences(ctx context.Context, sessionID string) ([]ArchivedSentence, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, session_id, text, language, emitted_at FROM sentences WHERE session_id = ? ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("query sentences: %w", err)
	}
	defer rows.Close()

	var result []ArchivedSentence
	for rows.Next() {
		var s ArchivedSentence
		if err := rows.Scan(&s.ID, &s.SessionID, &s.Text, &s.Language, &s.EmittedAt); err != nil {
			return nil, fmt.Errorf("scan sentence: %w", err)
		}
		result = append(result, s)
	}

	return result, rows.Err()
}

// Close closes the underlying database
func (a *Archive) Close() error {
	return a.db.Close()
}
