package interfaces

import (
	"context"

	"go.uber.org/zap"

	"hostel-billing/internal/billing/application"
	"hostel-billing/internal/eventing"
)

const loggingConsumer = "billing-event-log"

// RegisterEventLogging subscribes a zap logger to every billing event.
func RegisterEventLogging(bus eventing.Subscriber, store eventing.ProcessedStore, logger *zap.SugaredLogger) {
	if bus == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	for _, sample := range application.EventSamples() {
		eventType := eventing.EventType(sample)
		eventing.Subscribe(bus, eventType, loggingConsumer, func(ctx context.Context, event any) error {
			fields := []any{"event_type", eventType}
			if env, ok := eventing.EnvelopeFromContext(ctx); ok {
				fields = append(fields, "event_id", env.EventID, "landlord_id", env.LandlordID, "aggregate_id", env.AggregateID)
			}
			logger.Infow("billing event", append(fields, "payload", event)...)
			return nil
		}, store)
	}
}
