package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"

	"hostel-billing/internal/eventing"
)

const defaultDLQTable = "dead_letter_events"

// DLQStore keeps events that could not be delivered, one row per event id.
type DLQStore struct {
	db    *sql.DB
	table string
}

// NewDLQStore constructs a DLQ store.
func NewDLQStore(db *sql.DB, opts ...DLQOption) *DLQStore {
	store := &DLQStore{db: db, table: defaultDLQTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// DLQOption configures the DLQ store.
type DLQOption func(*DLQStore)

// WithDLQTable overrides the table name.
func WithDLQTable(table string) DLQOption {
	return func(store *DLQStore) {
		if table != "" {
			store.table = table
		}
	}
}

// DeadLetter is a stored delivery failure.
type DeadLetter struct {
	Envelope    eventing.Envelope
	Error       string
	Attempts    int
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

// RecordFailure inserts or bumps the DLQ record for the envelope.
func (s *DLQStore) RecordFailure(ctx context.Context, env eventing.Envelope, cause error) error {
	if s == nil || s.db == nil {
		return errors.New("dlq store: nil db")
	}
	if env.EventID == "" {
		return errors.New("dlq store: empty event id")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "dlq store: marshal envelope")
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	event_id,
	event_type,
	landlord_id,
	hostel_id,
	payload,
	error,
	first_seen_at,
	last_seen_at,
	attempts
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $7, 1
)
ON CONFLICT (event_id)
DO UPDATE SET
	payload = EXCLUDED.payload,
	error = EXCLUDED.error,
	last_seen_at = EXCLUDED.last_seen_at,
	attempts = %s.attempts + 1`, s.table, s.table)

	_, err = s.db.ExecContext(ctx, query, env.EventID, env.EventType, env.LandlordID, env.HostelID,
		payload, message, time.Now().UTC())
	return errors.Wrap(err, "dlq store: record failure")
}

// ListByLandlord returns the most recent dead letters for a landlord.
func (s *DLQStore) ListByLandlord(ctx context.Context, landlordID string, limit int) ([]DeadLetter, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("dlq store: nil db")
	}
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`
SELECT payload, error, attempts, first_seen_at, last_seen_at
FROM %s
WHERE landlord_id = $1
ORDER BY last_seen_at DESC
LIMIT $2`, s.table)
	rows, err := s.db.QueryContext(ctx, query, landlordID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeadLetter
	for rows.Next() {
		var payload []byte
		var item DeadLetter
		if err := rows.Scan(&payload, &item.Error, &item.Attempts, &item.FirstSeenAt, &item.LastSeenAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &item.Envelope); err != nil {
			return nil, errors.Wrap(err, "dlq store: decode envelope")
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
