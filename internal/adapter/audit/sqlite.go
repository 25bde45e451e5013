// Package audit persists orchestration decisions and inter-agent messages to
// SQLite so routing behavior can be inspected after the fact.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"agentic-rag/internal/domain"
)

// Store writes selection decisions and agent messages to SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) a SQLite database at dbPath and runs the
// schema migration.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS decisions (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			query          TEXT NOT NULL,
			selected_agent TEXT NOT NULL DEFAULT '',
			confidence     REAL NOT NULL,
			reasoning      TEXT NOT NULL,
			fallback_used  INTEGER NOT NULL,
			all_scores     TEXT NOT NULL DEFAULT '{}',
			created_at     TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS messages (
			id         TEXT PRIMARY KEY,
			type       TEXT NOT NULL,
			sender     TEXT NOT NULL,
			recipient  TEXT NOT NULL DEFAULT '',
			content    TEXT NOT NULL,
			metadata   TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_decisions_agent ON decisions(selected_agent);
		CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordDecision persists one selection decision.
func (s *Store) RecordDecision(ctx context.Context, d domain.SelectionDecision) error {
	scores, err := json.Marshal(d.AllScores)
	if err != nil {
		return domain.NewDomainError("audit.RecordDecision", domain.ErrAuditWrite, err.Error())
	}
	ts := d.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	fallback := 0
	if d.FallbackUsed {
		fallback = 1
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO decisions (query, selected_agent, confidence, reasoning, fallback_used, all_scores, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		d.Query, d.SelectedAgent, d.Confidence, d.Reasoning, fallback,
		string(scores), ts.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return domain.NewDomainError("audit.RecordDecision", domain.ErrAuditWrite, err.Error())
	}
	return nil
}

// RecentDecisions returns the latest n decisions, newest first.
func (s *Store) RecentDecisions(ctx context.Context, n int) ([]domain.SelectionDecision, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT query, selected_agent, confidence, reasoning, fallback_used, all_scores, created_at FROM decisions ORDER BY id DESC LIMIT ?", n)
	if err != nil {
		return nil, domain.WrapOp("audit.RecentDecisions", err)
	}
	defer rows.Close()

	var out []domain.SelectionDecision
	for rows.Next() {
		var (
			d        domain.SelectionDecision
			fallback int
			scores   string
			created  string
		)
		if err := rows.Scan(&d.Query, &d.SelectedAgent, &d.Confidence, &d.Reasoning, &fallback, &scores, &created); err != nil {
			return nil, domain.WrapOp("audit.RecentDecisions", err)
		}
		d.FallbackUsed = fallback != 0
		if err := json.Unmarshal([]byte(scores), &d.AllScores); err != nil {
			return nil, domain.WrapOp("audit.RecentDecisions", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			d.Timestamp = ts
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// RecordMessage persists one inter-agent message.
func (s *Store) RecordMessage(ctx context.Context, msg domain.AgentMessage) error {
	meta, err := json.Marshal(msg.Metadata)
	if err != nil {
		return domain.NewDomainError("audit.RecordMessage", domain.ErrAuditWrite, err.Error())
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO messages (id, type, sender, recipient, content, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		msg.ID, string(msg.Type), msg.Sender, msg.Recipient, msg.Content,
		string(meta), msg.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return domain.NewDomainError("audit.RecordMessage", domain.ErrAuditWrite, err.Error())
	}
	return nil
}

// MessagesFor returns all persisted messages addressed to recipient,
// oldest first.
func (s *Store) MessagesFor(ctx context.Context, recipient string) ([]domain.AgentMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, type, sender, recipient, content, metadata, created_at FROM messages WHERE recipient = ? ORDER BY created_at ASC", recipient)
	if err != nil {
		return nil, domain.WrapOp("audit.MessagesFor", err)
	}
	defer rows.Close()

	var out []domain.AgentMessage
	for rows.Next() {
		var (
			msg     domain.AgentMessage
			msgType string
			meta    string
			created string
		)
		if err := rows.Scan(&msg.ID, &msgType, &msg.Sender, &msg.Recipient, &msg.Content, &meta, &created); err != nil {
			return nil, domain.WrapOp("audit.MessagesFor", err)
		}
		msg.Type = domain.MessageType(msgType)
		if err := json.Unmarshal([]byte(meta), &msg.Metadata); err != nil {
			return nil, domain.WrapOp("audit.MessagesFor", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			msg.Timestamp = ts
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// DecisionStats summarizes the persisted decision log.
func (s *Store) DecisionStats(ctx context.Context) (total, fallbacks int, err error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(fallback_used), 0) FROM decisions")
	if err := row.Scan(&total, &fallbacks); err != nil {
		return 0, 0, domain.WrapOp("audit.DecisionStats", err)
	}
	return total, fallbacks, nil
}

// Prune deletes decisions and messages older than the cutoff and
// returns the number of rows removed.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	cutoff := olderThan.UTC().Format(time.RFC3339Nano)

	var removed int64
	for _, q := range []string{
		"DELETE FROM decisions WHERE created_at < ?",
		"DELETE FROM messages WHERE created_at < ?",
	} {
		res, err := s.db.ExecContext(ctx, q, cutoff)
		if err != nil {
			return removed, domain.WrapOp("audit.Prune", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	return removed, nil
}
