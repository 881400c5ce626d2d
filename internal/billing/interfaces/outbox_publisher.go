package interfaces

import (
	"context"

	"hostel-billing/internal/auth"
	"hostel-billing/internal/eventing"
)

// OutboxPublisher writes billing events to the outbox under the caller's landlord.
type OutboxPublisher struct {
	publisher  *eventing.Publisher
	landlordID string
}

// NewOutboxPublisher constructs an outbox publisher. landlordID is used when the request carries none.
func NewOutboxPublisher(publisher *eventing.Publisher, landlordID string) *OutboxPublisher {
	return &OutboxPublisher{publisher: publisher, landlordID: landlordID}
}

// Publish writes event to the outbox.
func (p *OutboxPublisher) Publish(ctx context.Context, event any) error {
	if p == nil || p.publisher == nil {
		return nil
	}
	landlordID := auth.LandlordIDFromContext(ctx)
	if landlordID == "" {
		landlordID = p.landlordID
	}
	ctx = eventing.WithLandlordID(ctx, landlordID)
	return p.publisher.Publish(ctx, event)
}
