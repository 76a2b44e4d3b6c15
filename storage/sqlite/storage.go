// Package sqlite provides a Storage collaborator on database/sql,
// written against the modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tidemark/eventsource"
)

// Config holds the adapter settings. Immutable after construction.
type Config struct {
	// EventsTable is the name of the events table.
	EventsTable string
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{EventsTable: "events"}
}

// Option is a functional option for configuring the adapter.
type Option func(*Config)

// WithEventsTable sets a custom events table name.
func WithEventsTable(name string) Option {
	return func(c *Config) { c.EventsTable = name }
}

// Storage persists events in a single append-only table. The unique
// (aggregate_id, aggregate_version) index backs the explicit head check
// as a safety net against racing writers.
type Storage struct {
	db  *sql.DB
	cfg Config
}

// New wraps an open database handle. The caller owns the handle's
// lifecycle.
func New(db *sql.DB, opts ...Option) *Storage {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Storage{db: db, cfg: cfg}
}

// Migrate creates the events table when it does not exist yet.
func (s *Storage) Migrate(ctx context.Context) error {
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			position INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			aggregate_id TEXT,
			aggregate_version INTEGER,
			saga_id TEXT,
			saga_version INTEGER,
			context TEXT NOT NULL DEFAULT '{}',
			payload TEXT,
			occurred_at TEXT NOT NULL,
			UNIQUE (aggregate_id, aggregate_version)
		)`, s.cfg.EventsTable)

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate %s: %w", s.cfg.EventsTable, err)
	}
	return nil
}

// CommitEvents appends the stream in one transaction. Each aggregate
// event's stamped version is checked against the stream head inside the
// transaction; a mismatch rolls the whole batch back.
func (s *Storage) CommitEvents(ctx context.Context, events eventsource.Stream) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}

	heads := make(map[string]uint64)
	for _, ev := range events {
		if ev.AggregateID == "" {
			continue
		}
		head, ok := heads[ev.AggregateID]
		if !ok {
			row := tx.QueryRowContext(ctx,
				fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE aggregate_id = ?`, s.cfg.EventsTable),
				ev.AggregateID,
			)
			if err := row.Scan(&head); err != nil {
				return errors.Join(fmt.Errorf("read stream head %q: %w", ev.AggregateID, err), tx.Rollback())
			}
		}
		if ev.AggregateVersion != head {
			conflict := &eventsource.VersionConflictError{
				StreamID: ev.AggregateID,
				Expected: head,
				Stamped:  ev.AggregateVersion,
			}
			return errors.Join(conflict, tx.Rollback())
		}
		heads[ev.AggregateID] = head + 1
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s (event_id, event_type, aggregate_id, aggregate_version,
			saga_id, saga_version, context, payload, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.cfg.EventsTable)

	for _, ev := range events {
		contextJSON, err := json.Marshal(contextOrEmpty(ev.Context))
		if err != nil {
			return errors.Join(fmt.Errorf("encode context for %q: %w", ev.Type, err), tx.Rollback())
		}

		var payloadJSON any
		if ev.Payload != nil {
			raw, err := json.Marshal(ev.Payload)
			if err != nil {
				return errors.Join(fmt.Errorf("encode payload for %q: %w", ev.Type, err), tx.Rollback())
			}
			payloadJSON = string(raw)
		}

		_, err = tx.ExecContext(ctx, insert,
			ev.ID.String(),
			ev.Type,
			nullString(ev.AggregateID),
			nullAggregateVersion(ev),
			nullString(ev.SagaID),
			nullSagaVersion(ev.SagaVersion),
			string(contextJSON),
			payloadJSON,
			ev.OccurredAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			err = fmt.Errorf("insert event %q for aggregate %q: %w", ev.Type, ev.AggregateID, err)
			return errors.Join(err, tx.Rollback())
		}
	}

	return tx.Commit()
}

// GetEvents returns all events in commit order, optionally restricted to
// the given types.
func (s *Storage) GetEvents(ctx context.Context, eventTypes ...string) ([]eventsource.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s`, eventColumns, s.cfg.EventsTable)

	var args []any
	if len(eventTypes) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(eventTypes)), ", ")
		query += fmt.Sprintf(` WHERE event_type IN (%s)`, placeholders)
		for _, t := range eventTypes {
			args = append(args, t)
		}
	}
	query += ` ORDER BY position`

	return s.queryEvents(ctx, query, args...)
}

// GetAggregateEvents returns one aggregate's stream in version order.
func (s *Storage) GetAggregateEvents(ctx context.Context, aggregateID string, filter *eventsource.Filter) ([]eventsource.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE aggregate_id = ?`, eventColumns, s.cfg.EventsTable)
	args := []any{aggregateID}

	if filter != nil && filter.BeforeEvent != nil {
		query += ` AND aggregate_version < ?`
		args = append(args, filter.BeforeEvent.AggregateVersion)
	}
	query += ` ORDER BY aggregate_version`

	return s.queryEvents(ctx, query, args...)
}

// GetSagaEvents returns one saga's stream bounded by the filter.
func (s *Storage) GetSagaEvents(ctx context.Context, sagaID string, filter eventsource.Filter) ([]eventsource.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE saga_id = ?`, eventColumns, s.cfg.EventsTable)
	args := []any{sagaID}

	if filter.BeforeEvent != nil && filter.BeforeEvent.SagaVersion != nil {
		query += ` AND saga_version < ?`
		args = append(args, *filter.BeforeEvent.SagaVersion)
	}
	query += ` ORDER BY saga_version`

	return s.queryEvents(ctx, query, args...)
}

// NewID returns a fresh uuid string.
func (s *Storage) NewID(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return uuid.NewString(), nil
}

const eventColumns = `event_id, event_type, aggregate_id, aggregate_version,
	saga_id, saga_version, context, payload, occurred_at`

func (s *Storage) queryEvents(ctx context.Context, query string, args ...any) (events []eventsource.Event, err error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = errors.Join(err, rows.Close())
	}()

	for rows.Next() {
		ev, scanErr := scanEvent(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (eventsource.Event, error) {
	var (
		ev          eventsource.Event
		eventID     string
		aggID       sql.NullString
		aggVersion  sql.NullInt64
		sagaID      sql.NullString
		sagaVersion sql.NullInt64
		contextJSON string
		payloadJSON sql.NullString
		occurredAt  string
	)

	err := rows.Scan(&eventID, &ev.Type, &aggID, &aggVersion,
		&sagaID, &sagaVersion, &contextJSON, &payloadJSON, &occurredAt)
	if err != nil {
		return eventsource.Event{}, err
	}

	ev.ID, err = uuid.Parse(eventID)
	if err != nil {
		return eventsource.Event{}, fmt.Errorf("parse event id %q: %w", eventID, err)
	}

	ev.AggregateID = aggID.String
	if aggVersion.Valid {
		ev.AggregateVersion = uint64(aggVersion.Int64)
	}
	ev.SagaID = sagaID.String
	if sagaVersion.Valid {
		v := uint64(sagaVersion.Int64)
		ev.SagaVersion = &v
	}

	if err := json.Unmarshal([]byte(contextJSON), &ev.Context); err != nil {
		return eventsource.Event{}, fmt.Errorf("decode context: %w", err)
	}
	if len(ev.Context) == 0 {
		ev.Context = nil
	}

	if payloadJSON.Valid {
		if err := json.Unmarshal([]byte(payloadJSON.String), &ev.Payload); err != nil {
			return eventsource.Event{}, fmt.Errorf("decode payload: %w", err)
		}
	}

	ev.OccurredAt, err = time.Parse(time.RFC3339Nano, occurredAt)
	if err != nil {
		return eventsource.Event{}, fmt.Errorf("parse occurred_at %q: %w", occurredAt, err)
	}

	return ev, nil
}

func contextOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullAggregateVersion(ev eventsource.Event) any {
	if ev.AggregateID == "" {
		return nil
	}
	return int64(ev.AggregateVersion)
}

func nullSagaVersion(v *uint64) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}
