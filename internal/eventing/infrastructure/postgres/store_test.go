package postgres_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostel-billing/internal/eventing"
	eventingrepo "hostel-billing/internal/eventing/infrastructure/postgres"
)

type paymentSeen struct {
	InvoiceID  string
	HostelID   string
	OccurredAt time.Time
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	for _, table := range []string{"event_outbox", "processed_events", "dead_letter_events"} {
		var exists bool
		err := db.QueryRow(`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		if !exists {
			t.Skip("missing tables; run migrations")
		}
	}
	ctx := context.Background()
	_, _ = db.ExecContext(ctx, "DELETE FROM processed_events")
	_, _ = db.ExecContext(ctx, "DELETE FROM dead_letter_events")
	_, _ = db.ExecContext(ctx, "DELETE FROM event_outbox")
	return db
}

func TestEventing_IdempotentConsumer(t *testing.T) {
	db := openDB(t)
	bus := eventing.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(paymentSeen{})

	outbox := eventingrepo.NewOutboxStore(db)
	processed := eventingrepo.NewProcessedStore(db)
	dlq := eventingrepo.NewDLQStore(db)
	dispatcher := eventing.NewDispatcher(bus, outbox, registry, dlq, nil)
	publisher := eventing.NewPublisher(outbox, "landlord-test", bus, nil)

	count := 0
	eventing.Subscribe(bus, eventing.EventTypeOf[paymentSeen](), "consumer-a", func(context.Context, any) error {
		count++
		return nil
	}, processed)

	ctx := eventing.WithEventID(context.Background(), "evt-dup-001")
	payload := paymentSeen{InvoiceID: "inv-1", HostelID: "h-1", OccurredAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, publisher.Publish(ctx, payload))
	require.NoError(t, publisher.Publish(ctx, payload))

	res, err := dispatcher.Dispatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 1, count)

	res, err = dispatcher.Dispatch(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, res.Claimed)
}

func TestEventing_FailureGoesToDLQ(t *testing.T) {
	db := openDB(t)
	bus := eventing.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(paymentSeen{})

	outbox := eventingrepo.NewOutboxStore(db, eventingrepo.WithMaxAttempts(1))
	dlq := eventingrepo.NewDLQStore(db)
	dispatcher := eventing.NewDispatcher(bus, outbox, registry, dlq, nil)
	publisher := eventing.NewPublisher(outbox, "landlord-dlq", bus, nil)
	bus.Subscribe(eventing.EventTypeOf[paymentSeen](), func(context.Context, any) error {
		return assert.AnError
	})

	ctx := eventing.WithEventID(context.Background(), "evt-dlq-001")
	require.NoError(t, publisher.Publish(ctx, paymentSeen{InvoiceID: "inv-2", HostelID: "h-2"}))
	res, err := dispatcher.Dispatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.DLQ)

	letters, err := dlq.ListByLandlord(ctx, "landlord-dlq", 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "evt-dlq-001", letters[0].Envelope.EventID)
	assert.Equal(t, "h-2", letters[0].Envelope.HostelID)

	var status string
	require.NoError(t, db.QueryRow(`SELECT status FROM event_outbox WHERE event_id = $1`, "evt-dlq-001").Scan(&status))
	assert.Equal(t, "failed", status)
}
