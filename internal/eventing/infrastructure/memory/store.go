package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"hostel-billing/internal/eventing"
)

type outboxRow struct {
	record    eventing.OutboxRecord
	status    string
	attempts  int
	createdAt time.Time
	seq       int
}

// OutboxStore keeps outbox records in memory. Used by tests and single-node dev runs.
type OutboxStore struct {
	mu          sync.Mutex
	rows        map[string]*outboxRow
	byEvent     map[string]string
	seq         int
	maxAttempts int
}

// NewOutboxStore constructs an in-memory outbox.
func NewOutboxStore(maxAttempts int) *OutboxStore {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &OutboxStore{
		rows:        make(map[string]*outboxRow),
		byEvent:     make(map[string]string),
		maxAttempts: maxAttempts,
	}
}

// Insert stores env unless its event id was already inserted.
func (s *OutboxStore) Insert(_ context.Context, env eventing.Envelope) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byEvent[env.EventID]; ok {
		return id, nil
	}
	id := uuid.NewString()
	s.seq++
	s.rows[id] = &outboxRow{
		record:    eventing.OutboxRecord{ID: id, Envelope: env},
		status:    "pending",
		createdAt: time.Now().UTC(),
		seq:       s.seq,
	}
	s.byEvent[env.EventID] = id
	return id, nil
}

// ListPending claims pending records in insertion order.
func (s *OutboxStore) ListPending(_ context.Context, limit int) ([]eventing.OutboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := make([]*outboxRow, 0)
	for _, row := range s.rows {
		if row.status == "pending" {
			pending = append(pending, row)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	out := make([]eventing.OutboxRecord, 0, len(pending))
	for _, row := range pending {
		row.status = "dispatching"
		out = append(out, row.record)
	}
	return out, nil
}

// MarkSent marks the record delivered.
func (s *OutboxStore) MarkSent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[id]; ok {
		row.status = "sent"
	}
	return nil
}

// MarkFailed returns the record to pending until attempts run out.
func (s *OutboxStore) MarkFailed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil
	}
	row.attempts++
	if row.attempts >= s.maxAttempts {
		row.status = "failed"
		return nil
	}
	row.status = "pending"
	return nil
}

// Status reports the status of the record holding eventID.
func (s *OutboxStore) Status(eventID string) (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEvent[eventID]
	if !ok {
		return "", 0
	}
	row := s.rows[id]
	return row.status, row.attempts
}

// Envelopes returns every stored envelope in insertion order.
func (s *OutboxStore) Envelopes() []eventing.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]*outboxRow, 0, len(s.rows))
	for _, row := range s.rows {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	out := make([]eventing.Envelope, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record.Envelope)
	}
	return out
}

// ProcessedStore tracks processed (event, consumer) pairs.
type ProcessedStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewProcessedStore constructs an in-memory processed store.
func NewProcessedStore() *ProcessedStore {
	return &ProcessedStore{seen: make(map[string]struct{})}
}

func (s *ProcessedStore) HasProcessed(_ context.Context, eventID, consumerName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[consumerName+"/"+eventID]
	return ok, nil
}

func (s *ProcessedStore) MarkProcessed(_ context.Context, eventID, consumerName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[consumerName+"/"+eventID] = struct{}{}
	return nil
}

// DLQStore collects failed envelopes.
type DLQStore struct {
	mu      sync.Mutex
	entries map[string]int
}

// NewDLQStore constructs an in-memory DLQ.
func NewDLQStore() *DLQStore {
	return &DLQStore{entries: make(map[string]int)}
}

func (s *DLQStore) RecordFailure(_ context.Context, env eventing.Envelope, _ error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[env.EventID]++
	return nil
}

// Attempts returns how many failures were recorded for eventID.
func (s *DLQStore) Attempts(eventID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[eventID]
}
