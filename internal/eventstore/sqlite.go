package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens the journal at dbPath; ":memory:" keeps it in memory.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryJournal, "could not open journal database").
			WithContext("path", dbPath).
			Build()
	}
	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, errors.WrapError(err, errors.CategoryJournal, "failed to initialize journal schema").
			WithContext("path", dbPath).
			Build()
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		payload BLOB NOT NULL,
		metadata TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_batch_id ON events(batch_id);
	CREATE INDEX IF NOT EXISTS idx_timestamp ON events(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append adds an event to the journal.
func (s *SQLiteStore) Append(ctx context.Context, batchID, eventType string, payload []byte, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var metadataJSON []byte
	if metadata != nil {
		var err error
		if metadataJSON, err = json.Marshal(metadata); err != nil {
			return errors.WrapError(err, errors.CategoryJournal, "failed to marshal event metadata").Build()
		}
	}
	if payload == nil {
		payload = []byte("{}")
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO events (batch_id, event_type, timestamp, payload, metadata) VALUES (?, ?, ?, ?, ?)",
		batchID, eventType, time.Now().UnixNano(), payload, metadataJSON,
	)
	if err != nil {
		return errors.WrapError(err, errors.CategoryJournal, "failed to append event").
			WithContext("batch_id", batchID).
			WithContext("event_type", eventType).
			Build()
	}
	return nil
}

// GetByBatchID returns the events of one batch in append order.
func (s *SQLiteStore) GetByBatchID(ctx context.Context, batchID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, batch_id, event_type, timestamp, payload, metadata FROM events WHERE batch_id = ? ORDER BY id",
		batchID,
	)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryJournal, "failed to query events").Build()
	}
	defer rows.Close()
	return scanEvents(rows)
}

// GetRange returns events recorded within [start, end].
func (s *SQLiteStore) GetRange(ctx context.Context, start, end time.Time) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, batch_id, event_type, timestamp, payload, metadata FROM events WHERE timestamp >= ? AND timestamp <= ? ORDER BY id",
		start.UnixNano(), end.UnixNano(),
	)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryJournal, "failed to query events").Build()
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var (
			e            Event
			ts           int64
			metadataJSON []byte
		)
		if err := rows.Scan(&e.ID, &e.BatchID, &e.Type, &ts, &e.Payload, &metadataJSON); err != nil {
			return nil, errors.WrapError(err, errors.CategoryJournal, "failed to scan event row").Build()
		}
		e.Timestamp = time.Unix(0, ts)
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
				return nil, errors.WrapError(err, errors.CategoryJournal, "failed to unmarshal event metadata").Build()
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapError(err, errors.CategoryJournal, "failed to iterate events").Build()
	}
	return events, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
