// Package store provides the SQLite-backed conversation state store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/user/synapse/internal/types"
)

// Store persists conversation threads in SQLite. Message history is an
// append-only log keyed by (thread_id, seq); thread metadata lives in a
// separate table. A checkpoint writes only the suffix of the history that
// is not yet durable, inside a single transaction, so previously
// checkpointed messages are never rewritten, reordered, or dropped.
type Store struct {
	db *sql.DB
}

var _ types.ThreadStore = (*Store)(nil)

// Open creates (or opens) the store at dbPath and runs schema setup.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite write safety: single writer.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma: %w", err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS threads (
		id                  TEXT PRIMARY KEY,
		title               TEXT NOT NULL DEFAULT '',
		document_path       TEXT NOT NULL DEFAULT '',
		doc_guidance_issued INTEGER NOT NULL DEFAULT 0,
		created_at          TEXT NOT NULL,
		updated_at          TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS messages (
		thread_id    TEXT NOT NULL REFERENCES threads(id),
		seq          INTEGER NOT NULL,
		role         TEXT NOT NULL,
		content      TEXT NOT NULL,
		tool_calls   TEXT,
		tool_call_id TEXT NOT NULL DEFAULT '',
		tool_name    TEXT NOT NULL DEFAULT '',
		created_at   TEXT NOT NULL,
		PRIMARY KEY (thread_id, seq)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ensureThread inserts the thread row if it does not exist yet. Runs inside
// the caller's transaction when tx is non-nil.
func (s *Store) ensureThread(ctx context.Context, tx *sql.Tx, id types.ThreadID) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	const q = `INSERT INTO threads (id, created_at, updated_at) VALUES (?, ?, ?)
	           ON CONFLICT(id) DO NOTHING`
	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, q, string(id), now, now)
	} else {
		_, err = s.db.ExecContext(ctx, q, string(id), now, now)
	}
	if err != nil {
		return fmt.Errorf("ensure thread: %w", err)
	}
	return nil
}

// Load returns the thread's full message history in append order. Threads
// that were never checkpointed return an empty history.
func (s *Store) Load(ctx context.Context, id types.ThreadID) ([]types.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, tool_calls, tool_call_id, tool_name, created_at
		 FROM messages WHERE thread_id = ? ORDER BY seq`,
		string(id),
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var history []types.Message
	for rows.Next() {
		var (
			msg       types.Message
			role      string
			toolCalls sql.NullString
			callID    string
			createdAt string
		)
		if err := rows.Scan(&role, &msg.Content, &toolCalls, &callID, &msg.ToolName, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = types.Role(role)
		msg.ToolCallID = types.CallID(callID)
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("unmarshal tool calls: %w", err)
			}
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			msg.At = t
		}
		history = append(history, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return history, nil
}

// Checkpoint makes the given history durable. The stored log must be a
// prefix of history; only the new suffix is written. A history shorter than
// what is already stored is rejected rather than silently truncating.
func (s *Store) Checkpoint(ctx context.Context, id types.ThreadID, history []types.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin checkpoint: %w", err)
	}
	defer tx.Rollback()

	if err := s.ensureThread(ctx, tx, id); err != nil {
		return err
	}

	var stored int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE thread_id = ?`, string(id),
	).Scan(&stored); err != nil {
		return fmt.Errorf("count messages: %w", err)
	}

	if len(history) < stored {
		return fmt.Errorf("checkpoint would drop messages: stored %d, got %d", stored, len(history))
	}

	for seq := stored; seq < len(history); seq++ {
		msg := history[seq]
		var toolCalls any
		if len(msg.ToolCalls) > 0 {
			data, err := json.Marshal(msg.ToolCalls)
			if err != nil {
				return fmt.Errorf("marshal tool calls: %w", err)
			}
			toolCalls = string(data)
		}
		at := msg.At
		if at.IsZero() {
			at = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (thread_id, seq, role, content, tool_calls, tool_call_id, tool_name, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			string(id), seq, string(msg.Role), msg.Content, toolCalls,
			string(msg.ToolCallID), msg.ToolName, at.Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert message %d: %w", seq, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE threads SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), string(id),
	); err != nil {
		return fmt.Errorf("touch thread: %w", err)
	}

	return tx.Commit()
}

// ListThreads returns all known threads mapped to their titles.
func (s *Store) ListThreads(ctx context.Context) (map[types.ThreadID]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title FROM threads`)
	if err != nil {
		return nil, fmt.Errorf("query threads: %w", err)
	}
	defer rows.Close()

	threads := make(map[types.ThreadID]string)
	for rows.Next() {
		var id, title string
		if err := rows.Scan(&id, &title); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		threads[types.ThreadID(id)] = title
	}
	return threads, rows.Err()
}

// SetTitle records the thread title. The first non-empty write wins; later
// calls leave the existing title untouched.
func (s *Store) SetTitle(ctx context.Context, id types.ThreadID, title string) error {
	if err := s.ensureThread(ctx, nil, id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE threads SET title = ?, updated_at = ? WHERE id = ? AND title = ''`,
		title, time.Now().UTC().Format(time.RFC3339Nano), string(id),
	)
	if err != nil {
		return fmt.Errorf("set title: %w", err)
	}
	return nil
}

// Thread returns the thread's metadata. Unknown threads return a zero-value
// record rather than an error, mirroring Load's behavior for history.
func (s *Store) Thread(ctx context.Context, id types.ThreadID) (*types.Thread, error) {
	var (
		th        = types.Thread{ID: id}
		issued    int
		createdAt string
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT title, document_path, doc_guidance_issued, created_at, updated_at
		 FROM threads WHERE id = ?`, string(id),
	).Scan(&th.Title, &th.DocumentPath, &issued, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return &th, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query thread: %w", err)
	}
	th.DocGuidanceIssued = issued != 0
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		th.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		th.UpdatedAt = t
	}
	return &th, nil
}

// SetAttachedDocument associates a document path with the thread. The last
// write wins, so re-uploading replaces the association.
func (s *Store) SetAttachedDocument(ctx context.Context, id types.ThreadID, path string) error {
	if err := s.ensureThread(ctx, nil, id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE threads SET document_path = ?, updated_at = ? WHERE id = ?`,
		path, time.Now().UTC().Format(time.RFC3339Nano), string(id),
	)
	if err != nil {
		return fmt.Errorf("set attached document: %w", err)
	}
	return nil
}

// MarkDocGuidanceIssued records that the document guidance message has been
// added to the thread's history.
func (s *Store) MarkDocGuidanceIssued(ctx context.Context, id types.ThreadID) error {
	if err := s.ensureThread(ctx, nil, id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE threads SET doc_guidance_issued = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), string(id),
	)
	if err != nil {
		return fmt.Errorf("mark guidance issued: %w", err)
	}
	return nil
}

// Maintain runs periodic housekeeping: it forces a WAL checkpoint so the
// log does not grow unbounded under long uptimes.
func (s *Store) Maintain(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}
