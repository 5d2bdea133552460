// SQLite audit sink.
//
// Information Hiding:
// - SQLite connection management hidden behind the Sink interface
// - Schema and migration details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/richinex/redline/model"
)

// SqliteSink persists audit events, intents and patches in a SQLite
// database file.
type SqliteSink struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteSink, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	sink := &SqliteSink{db: db}
	if err := sink.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return sink, nil
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteSink, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}

	sink := &SqliteSink{db: db}
	if err := sink.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return sink, nil
}

// Close closes the database connection.
func (s *SqliteSink) Close() error {
	return s.db.Close()
}

func (s *SqliteSink) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS audit_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL UNIQUE,
			event_type TEXT NOT NULL,
			intent_id TEXT NOT NULL,
			patch_id TEXT,
			timestamp TEXT NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			metadata TEXT,
			prev_hash TEXT,
			hash TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_audit_intent
		ON audit_events(intent_id, seq);

		CREATE INDEX IF NOT EXISTS idx_audit_type
		ON audit_events(event_type, seq);

		CREATE TABLE IF NOT EXISTS intents (
			intent_id TEXT PRIMARY KEY,
			received_at TEXT NOT NULL,
			requester TEXT,
			payload_hash TEXT NOT NULL,
			payload TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS patches (
			patch_id TEXT PRIMARY KEY,
			intent_id TEXT NOT NULL,
			doc_id TEXT NOT NULL,
			version_id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			payload_hash TEXT NOT NULL,
			payload TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_patches_intent
		ON patches(intent_id);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// WriteBatch appends a batch of events inside one transaction.
func (s *SqliteSink) WriteBatch(ctx context.Context, events []model.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Rollback is safe after Commit - it becomes a no-op.
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO audit_events
		(event_id, event_type, intent_id, patch_id, timestamp, duration_ms, status, metadata, prev_hash, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		var metadata interface{}
		if len(e.Metadata) > 0 {
			raw, err := json.Marshal(e.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode metadata: %w", err)
			}
			metadata = string(raw)
		}
		_, err = stmt.ExecContext(ctx,
			e.EventID,
			string(e.Type),
			e.IntentID,
			nullable(e.PatchID),
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			e.DurationMS,
			string(e.Status),
			metadata,
			nullable(e.PrevHash),
			e.Hash,
		)
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Query returns matching events in append order.
func (s *SqliteSink) Query(ctx context.Context, f Filter) ([]model.AuditEvent, error) {
	query := `
		SELECT event_id, event_type, intent_id, patch_id, timestamp, duration_ms, status, metadata, prev_hash, hash
		FROM audit_events WHERE 1=1`
	var args []interface{}

	if f.IntentID != "" {
		query += " AND intent_id = ?"
		args = append(args, f.IntentID)
	}
	if f.PatchID != "" {
		query += " AND patch_id = ?"
		args = append(args, f.PatchID)
	}
	if f.Type != "" {
		query += " AND event_type = ?"
		args = append(args, string(f.Type))
	}
	if !f.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, f.Since.UTC().Format(time.RFC3339Nano))
	}
	query += " ORDER BY seq ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []model.AuditEvent{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (model.AuditEvent, error) {
	var e model.AuditEvent
	var eventType, status, timestamp string
	var patchID, metadata, prevHash sql.NullString

	err := rows.Scan(
		&e.EventID,
		&eventType,
		&e.IntentID,
		&patchID,
		&timestamp,
		&e.DurationMS,
		&status,
		&metadata,
		&prevHash,
		&e.Hash,
	)
	if err != nil {
		return model.AuditEvent{}, fmt.Errorf("failed to scan event: %w", err)
	}

	e.Type = model.EventType(eventType)
	e.Status = model.EventStatus(status)
	if patchID.Valid {
		e.PatchID = patchID.String
	}
	if prevHash.Valid {
		e.PrevHash = prevHash.String
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
			return model.AuditEvent{}, fmt.Errorf("invalid metadata in database: %w", err)
		}
	}
	ts, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return model.AuditEvent{}, fmt.Errorf("invalid timestamp in database: %w", err)
	}
	e.Timestamp = ts

	return e, nil
}

// Stats returns event counts per event type.
func (s *SqliteSink) Stats(ctx context.Context) (map[model.EventType]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT event_type, COUNT(*) FROM audit_events GROUP BY event_type")
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	out := map[model.EventType]int{}
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		out[model.EventType(typ)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stats: %w", err)
	}
	return out, nil
}

// LastHash returns the hash of the newest stored event.
func (s *SqliteSink) LastHash(ctx context.Context) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		"SELECT hash FROM audit_events ORDER BY seq DESC LIMIT 1").Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read last hash: %w", err)
	}
	return hash, nil
}

// SaveIntent stores the raw intent next to the event stream,
// content-addressed for tamper evidence.
func (s *SqliteSink) SaveIntent(ctx context.Context, it *model.EditIntent) error {
	payload, err := json.Marshal(it)
	if err != nil {
		return fmt.Errorf("failed to encode intent: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO intents
		(intent_id, received_at, requester, payload_hash, payload)
		VALUES (?, ?, ?, ?, ?)`,
		it.IntentID,
		time.Now().UTC().Format(time.RFC3339Nano),
		nullable(it.Requester),
		model.HashContent(payload),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to store intent: %w", err)
	}
	return nil
}

// SavePatch stores a built block patch.
func (s *SqliteSink) SavePatch(ctx context.Context, p *model.BlockPatch) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode patch: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO patches
		(patch_id, intent_id, doc_id, version_id, created_at, payload_hash, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.PatchID,
		p.IntentID,
		p.DocID,
		p.VersionID,
		p.CreatedAt.UTC().Format(time.RFC3339Nano),
		model.HashContent(payload),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to store patch: %w", err)
	}
	return nil
}

// LoadPatch returns a stored patch by id. Returns nil, nil if not found.
func (s *SqliteSink) LoadPatch(ctx context.Context, patchID string) (*model.BlockPatch, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM patches WHERE patch_id = ?", patchID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load patch: %w", err)
	}
	var p model.BlockPatch
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("invalid patch payload in database: %w", err)
	}
	return &p, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Verify SqliteSink implements Sink
var _ Sink = (*SqliteSink)(nil)
var _ PatchStore = (*SqliteSink)(nil)
