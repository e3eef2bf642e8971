package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store manages the SQLite connection and schema.
type Store struct {
	db *sql.DB
}

// NewStore initializes the SQLite database connection.
// It enables WAL mode so readers do not block the request path.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &Store{db: db}

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the necessary tables if they don't exist.
func (s *Store) migrate() error {
	// The query and provenance are columns for filtering; the details
	// are kept as a JSON payload.
	query := `
	CREATE TABLE IF NOT EXISTS events (
		event_id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		schema_version INTEGER NOT NULL,
		ts_event DATETIME NOT NULL,
		ts_ingest DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,

		query_label TEXT,
		query_code TEXT,
		query_system TEXT,

		outcome TEXT NOT NULL,
		source TEXT,
		trace_id TEXT,

		payload JSON NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_ts_event ON events(ts_event);
	CREATE INDEX IF NOT EXISTS idx_events_outcome ON events(outcome);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create events table: %w", err)
	}

	return nil
}

// AppendEvent stores evt, assigning an id and ingest time when missing.
func (s *Store) AppendEvent(ctx context.Context, evt *Event) error {
	if evt.EventID == "" {
		evt.EventID = EventID(uuid.NewString())
	}
	if evt.SchemaVersion == 0 {
		evt.SchemaVersion = SchemaVersion
	}
	if evt.TsEvent.IsZero() {
		evt.TsEvent = time.Now()
	}
	evt.TsEvent = evt.TsEvent.UTC()
	evt.TsIngest = time.Now().UTC()

	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (
			event_id, event_type, schema_version, ts_event, ts_ingest,
			query_label, query_code, query_system,
			outcome, source, trace_id, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(evt.EventID), string(evt.EventType), evt.SchemaVersion, evt.TsEvent, evt.TsIngest,
		evt.Query.Label, evt.Query.Code, evt.Query.System,
		evt.Outcome, evt.Source, evt.TraceID, string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

const selectEvents = `
	SELECT event_id, event_type, schema_version, ts_event, ts_ingest,
		query_label, query_code, query_system,
		outcome, source, trace_id, payload
	FROM events`

// GetEvent returns the event with id, or nil when it does not exist.
func (s *Store) GetEvent(ctx context.Context, id EventID) (*Event, error) {
	row := s.db.QueryRowContext(ctx, selectEvents+` WHERE event_id = ?`, string(id))
	evt, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return evt, nil
}

// ReadRecentEvents returns up to limit events, newest first.
func (s *Store) ReadRecentEvents(ctx context.Context, limit int) ([]*Event, error) {
	return s.QueryEvents(ctx, EventFilter{Limit: limit})
}

// QueryEvents returns events matching filter, newest first.
func (s *Store) QueryEvents(ctx context.Context, filter EventFilter) ([]*Event, error) {
	var (
		where []string
		args  []any
	)
	if !filter.From.IsZero() {
		where = append(where, "ts_event >= ?")
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		where = append(where, "ts_event <= ?")
		args = append(args, filter.To.UTC())
	}
	if len(filter.EventTypes) > 0 {
		marks := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			marks[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "event_type IN ("+strings.Join(marks, ",")+")")
	}
	if filter.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, filter.Outcome)
	}
	if filter.Source != "" {
		where = append(where, "source = ?")
		args = append(args, filter.Source)
	}

	query := selectEvents
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts_event DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// CountOutcomes aggregates events by outcome and source.
func (s *Store) CountOutcomes(ctx context.Context) ([]OutcomeCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT outcome, COALESCE(source, ''), COUNT(*)
		FROM events
		GROUP BY outcome, source
		ORDER BY outcome, source`)
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}
	defer rows.Close()

	var counts []OutcomeCount
	for rows.Next() {
		var c OutcomeCount
		if err := rows.Scan(&c.Outcome, &c.Source, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan outcome count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*Event, error) {
	var (
		evt                 Event
		eventID, eventType  string
		label, code, system sql.NullString
		source, traceID     sql.NullString
		payload             string
	)
	err := row.Scan(&eventID, &eventType, &evt.SchemaVersion, &evt.TsEvent, &evt.TsIngest,
		&label, &code, &system, &evt.Outcome, &source, &traceID, &payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}
	evt.EventID = EventID(eventID)
	evt.EventType = EventType(eventType)
	evt.Query = EventQuery{Label: label.String, Code: code.String, System: system.String}
	evt.Source = source.String
	evt.TraceID = traceID.String
	if err := json.Unmarshal([]byte(payload), &evt.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload for event %s: %w", eventID, err)
	}
	return &evt, nil
}
