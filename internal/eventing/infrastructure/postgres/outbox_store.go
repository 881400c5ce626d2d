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

const (
	defaultOutboxTable = "event_outbox"
	defaultMaxAttempts = 5
)

// OutboxStore is a Postgres implementation for outbox records.
// Failed records return to pending until they reach the attempt limit.
type OutboxStore struct {
	db          *sql.DB
	table       string
	maxAttempts int
}

// NewOutboxStore constructs an outbox store.
func NewOutboxStore(db *sql.DB, opts ...OutboxOption) *OutboxStore {
	store := &OutboxStore{db: db, table: defaultOutboxTable, maxAttempts: defaultMaxAttempts}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// OutboxOption configures the outbox store.
type OutboxOption func(*OutboxStore)

// WithOutboxTable overrides the table name.
func WithOutboxTable(table string) OutboxOption {
	return func(store *OutboxStore) {
		if table != "" {
			store.table = table
		}
	}
}

// WithMaxAttempts sets how many failed deliveries a record gets before it stays failed.
func WithMaxAttempts(n int) OutboxOption {
	return func(store *OutboxStore) {
		if n > 0 {
			store.maxAttempts = n
		}
	}
}

// Insert writes an envelope to outbox. Re-inserting an event id is a no-op.
func (s *OutboxStore) Insert(ctx context.Context, env eventing.Envelope) (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New("outbox store: nil db")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", errors.Wrap(err, "outbox store: marshal envelope")
	}
	outboxID := eventing.NewEventID()
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	event_id,
	event_type,
	landlord_id,
	hostel_id,
	aggregate_id,
	payload,
	status,
	attempts,
	created_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, 'pending', 0, $8
)
ON CONFLICT (event_id)
DO NOTHING`, s.table)

	_, err = s.db.ExecContext(ctx, query, outboxID, env.EventID, env.EventType,
		env.LandlordID, env.HostelID, env.AggregateID, payload, time.Now().UTC())
	if err != nil {
		return "", errors.Wrap(err, "outbox store: insert")
	}
	return outboxID, nil
}

// ListPending claims up to limit pending records, oldest first.
// Rows locked by a concurrent dispatcher are skipped.
func (s *OutboxStore) ListPending(ctx context.Context, limit int) ([]eventing.OutboxRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("outbox store: nil db")
	}
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
SELECT id, payload
FROM %s
WHERE status = 'pending'
ORDER BY created_at ASC
LIMIT $1
FOR UPDATE SKIP LOCKED`, s.table)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	var result []eventing.OutboxRecord
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			rows.Close()
			return nil, err
		}
		var env eventing.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			rows.Close()
			return nil, errors.Wrapf(err, "outbox store: decode %s", id)
		}
		result = append(result, eventing.OutboxRecord{ID: id, Envelope: env})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, tx.Commit()
	}

	ids := make([]string, 0, len(result))
	for _, r := range result {
		ids = append(ids, r.ID)
	}
	claim := fmt.Sprintf(`UPDATE %s SET status = 'dispatching' WHERE id = ANY($1)`, s.table)
	if _, err := tx.ExecContext(ctx, claim, ids); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkSent marks outbox record as sent.
func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errors.New("outbox store: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET status = 'sent', sent_at = $1
WHERE id = $2`, s.table)
	_, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	return err
}

// MarkFailed increments attempts and returns the record to pending while attempts remain.
func (s *OutboxStore) MarkFailed(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errors.New("outbox store: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET attempts = attempts + 1,
	status = CASE WHEN attempts + 1 >= $2 THEN 'failed' ELSE 'pending' END
WHERE id = $1`, s.table)
	_, err := s.db.ExecContext(ctx, query, id, s.maxAttempts)
	return err
}
