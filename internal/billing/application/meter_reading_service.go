package application

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	billing "hostel-billing/internal/billing/domain"
)

// MeterReadingService records meter readings.
type MeterReadingService struct {
	readings billing.MeterReadingRepository
	invoices billing.InvoiceRepository
	locks    *KeyedExecutor
	logger   *zap.SugaredLogger
	now      Clock
}

// NewMeterReadingService constructs the service.
func NewMeterReadingService(readings billing.MeterReadingRepository, invoices billing.InvoiceRepository, locks *KeyedExecutor, logger *zap.SugaredLogger) (*MeterReadingService, error) {
	if readings == nil {
		return nil, errors.New("meter reading service: nil reading repo")
	}
	if invoices == nil {
		return nil, errors.New("meter reading service: nil invoice repo")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &MeterReadingService{readings: readings, invoices: invoices, locks: locks, logger: logger, now: systemClock}, nil
}

// Record stores one reading per room, service and period.
// A reading lower than the previous period's, or higher than the next period's, is rejected.
// Periods that already have an active invoice are immutable, and so are readings that a later
// invoice consumed as its previous reading.
func (s *MeterReadingService) Record(ctx context.Context, reading billing.MeterReading) (billing.MeterReading, error) {
	if err := reading.Validate(); err != nil {
		return billing.MeterReading{}, err
	}
	key := billing.InvoiceKey{RoomID: reading.RoomID, Period: reading.Period()}

	err := s.locks.Do(ctx, key.String(), func(ctx context.Context) error {
		active, err := s.invoices.FindActive(ctx, key)
		if err != nil {
			return err
		}
		if active != nil {
			return errors.Wrapf(billing.ErrPeriodAlreadyBilled, "invoice %s covers %s", active.ID, key)
		}
		period := reading.Period()
		prev, err := s.readings.LatestBefore(ctx, reading.RoomID, reading.ServiceID, period)
		if err != nil {
			return err
		}
		if prev != nil && reading.Reading < prev.Reading {
			return &billing.NegativeConsumptionError{Previous: prev.Reading, Current: reading.Reading}
		}
		next, err := s.readings.EarliestAfter(ctx, reading.RoomID, reading.ServiceID, period)
		if err != nil {
			return err
		}
		if next != nil && next.Reading < reading.Reading {
			return &billing.NegativeConsumptionError{Previous: reading.Reading, Current: next.Reading}
		}
		if next != nil {
			// Invoices between this period and the next reading priced from the reading before this one.
			if err := s.ensureNotConsumed(ctx, reading.RoomID, period.Next(), next.Period()); err != nil {
				return err
			}
		}
		reading.RecordedAt = s.now()
		return s.readings.Upsert(ctx, reading)
	})
	if err != nil {
		return billing.MeterReading{}, err
	}
	s.logger.Infow("meter reading recorded",
		"room_id", reading.RoomID,
		"service_id", reading.ServiceID,
		"period", reading.Period().String(),
		"reading", reading.Reading,
	)
	return reading, nil
}

func (s *MeterReadingService) ensureNotConsumed(ctx context.Context, roomID string, from, to billing.BillingPeriod) error {
	later, err := s.invoices.List(ctx, billing.InvoiceFilter{RoomID: roomID, From: &from, To: &to, Limit: 1})
	if err != nil {
		return err
	}
	if len(later) > 0 {
		return errors.Wrapf(billing.ErrPeriodAlreadyBilled, "invoice %s for %s already consumed the previous reading",
			later[0].ID, later[0].Key())
	}
	return nil
}

// List returns the readings of a room for a period.
func (s *MeterReadingService) List(ctx context.Context, roomID string, period billing.BillingPeriod) ([]billing.MeterReading, error) {
	if roomID == "" {
		return nil, errors.Wrap(billing.ErrEmptyID, "room id required")
	}
	return s.readings.ListForRoom(ctx, roomID, period)
}
