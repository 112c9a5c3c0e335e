// Package audit persists an append-only trail of governance-relevant
// actions: session lifecycle, attestation decisions, and tool
// executions. The store is an embedded SQLite database.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/moolen/causeway/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ts          TIMESTAMP NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	action      TEXT NOT NULL,
	actor       TEXT NOT NULL,
	details     TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_entries (entity_id, ts);
`

// Well-known entity types.
const (
	EntitySession     = "session"
	EntityAttestation = "attestation"
	EntityTool        = "tool"
)

// Well-known actions.
const (
	ActionCreated  = "created"
	ActionExpired  = "expired"
	ActionDecided  = "decided"
	ActionExecuted = "executed"
)

// Entry is one audit log row.
type Entry struct {
	ID         int64     `db:"id" json:"id"`
	TS         time.Time `db:"ts" json:"ts"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   string    `db:"entity_id" json:"entity_id"`
	Action     string    `db:"action" json:"action"`
	Actor      string    `db:"actor" json:"actor"`
	Details    string    `db:"details" json:"details,omitempty"`
}

// Store is the embedded audit log.
type Store struct {
	db     *sqlx.DB
	logger *logging.Logger
}

// Open connects to (and migrates) the audit database at path. Use
// ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit store: %w", err)
	}
	return &Store{db: db, logger: logging.GetLogger("audit")}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one entry. Details is marshaled to JSON; a nil value
// stores an empty string. Recording failures are returned, never
// fatal, so callers may log and continue.
func (s *Store) Record(ctx context.Context, entityType, entityID, action, actor string, details any) error {
	detailsJSON := ""
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		detailsJSON = string(raw)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_entries (ts, entity_type, entity_id, action, actor, details)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		time.Now().UTC(), entityType, entityID, action, actor, detailsJSON)
	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

// List returns all entries for one entity, oldest first.
func (s *Store) List(ctx context.Context, entityID string) ([]Entry, error) {
	var entries []Entry
	err := s.db.SelectContext(ctx, &entries,
		`SELECT * FROM audit_entries WHERE entity_id = ? ORDER BY ts ASC, id ASC`, entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}
