package eventing_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostel-billing/internal/eventing"
	"hostel-billing/internal/eventing/infrastructure/memory"
)

type roomBilled struct {
	InvoiceID  string
	HostelID   string
	Amount     string
	OccurredAt time.Time
}

func TestPublishDispatch_DeliversOnceWithEnvelope(t *testing.T) {
	ctx := context.Background()
	bus := eventing.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(roomBilled{})
	outbox := memory.NewOutboxStore(3)
	processed := memory.NewProcessedStore()
	dispatcher := eventing.NewDispatcher(bus, outbox, registry, memory.NewDLQStore(), nil)
	publisher := eventing.NewPublisher(outbox, "landlord-1", bus, nil)

	var got []roomBilled
	var envs []eventing.Envelope
	eventing.Subscribe(bus, eventing.EventTypeOf[roomBilled](), "test-consumer", func(ctx context.Context, event any) error {
		env, _ := eventing.EnvelopeFromContext(ctx)
		envs = append(envs, env)
		got = append(got, event.(roomBilled))
		return nil
	}, processed)

	ctx = eventing.WithEventID(ctx, "evt-1")
	payload := roomBilled{InvoiceID: "inv-1", HostelID: "h-1", Amount: "105000", OccurredAt: time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, publisher.Publish(ctx, payload))
	require.NoError(t, publisher.Publish(ctx, payload))

	res, err := dispatcher.Dispatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Claimed)
	assert.Equal(t, 1, res.Sent)

	require.Len(t, got, 1)
	assert.Equal(t, payload, got[0])
	assert.Equal(t, "landlord-1", envs[0].LandlordID)
	assert.Equal(t, "h-1", envs[0].HostelID)
	assert.Equal(t, "inv-1", envs[0].AggregateID)

	status, _ := outbox.Status("evt-1")
	assert.Equal(t, "sent", status)
}

func TestDispatch_FailureRetriesThenDeadLetters(t *testing.T) {
	bus := eventing.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(roomBilled{})
	outbox := memory.NewOutboxStore(2)
	dlq := memory.NewDLQStore()
	dispatcher := eventing.NewDispatcher(bus, outbox, registry, dlq, nil)
	publisher := eventing.NewPublisher(outbox, "landlord-1", bus, nil)

	bus.Subscribe(eventing.EventTypeOf[roomBilled](), func(context.Context, any) error {
		return errors.New("boom")
	})

	ctx := eventing.WithEventID(context.Background(), "evt-fail")
	require.NoError(t, publisher.Publish(ctx, roomBilled{InvoiceID: "inv-2"}))

	res, err := dispatcher.Dispatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	status, attempts := outbox.Status("evt-fail")
	assert.Equal(t, "pending", status)
	assert.Equal(t, 1, attempts)

	_, err = dispatcher.Dispatch(context.Background(), 10)
	require.NoError(t, err)
	status, attempts = outbox.Status("evt-fail")
	assert.Equal(t, "failed", status)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 2, dlq.Attempts("evt-fail"))

	res, err = dispatcher.Dispatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, res.Claimed)
}

func TestDispatch_UnknownTypeFails(t *testing.T) {
	outbox := memory.NewOutboxStore(1)
	_, err := outbox.Insert(context.Background(), eventing.Envelope{EventID: "e", EventType: "nope", Payload: []byte(`{}`)})
	require.NoError(t, err)
	dispatcher := eventing.NewDispatcher(eventing.NewInMemoryBus(), outbox, eventing.NewRegistry(), nil, nil)

	res, err := dispatcher.Dispatch(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 50, res.Requested)
	assert.Equal(t, 1, res.Failed)
}

func TestBuildEnvelope_Defaults(t *testing.T) {
	env, err := eventing.BuildEnvelope(&roomBilled{HostelID: "h-9"}, eventing.Meta{})
	require.NoError(t, err)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, env.EventID, env.CorrelationID)
	assert.Equal(t, 1, env.SchemaVersion)
	assert.Equal(t, "h-9", env.HostelID)
	assert.False(t, env.OccurredAt.IsZero())

	_, err = eventing.BuildEnvelope(nil, eventing.Meta{})
	assert.ErrorIs(t, err, eventing.ErrNilEvent)
}
