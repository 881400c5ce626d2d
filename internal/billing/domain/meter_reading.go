package billing

import (
	"time"

	"github.com/cockroachdb/errors"
)

// MeterReading is the cumulative meter value of a room service for one period.
type MeterReading struct {
	RoomID       string    `json:"room_id"`
	ServiceID    string    `json:"service_id"`
	Reading      int64     `json:"reading"`
	BillingMonth int       `json:"billing_month"`
	BillingYear  int       `json:"billing_year"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// Period returns the billing period of the reading.
func (m MeterReading) Period() BillingPeriod {
	return BillingPeriod{Month: m.BillingMonth, Year: m.BillingYear}
}

// Validate checks reading invariants.
func (m MeterReading) Validate() error {
	if m.RoomID == "" || m.ServiceID == "" {
		return errors.Wrap(ErrEmptyID, "reading requires room and service")
	}
	if _, err := NewBillingPeriod(m.BillingMonth, m.BillingYear); err != nil {
		return err
	}
	if m.Reading < 0 {
		return errors.Wrapf(ErrInvalidReading, "reading %d is negative", m.Reading)
	}
	return nil
}
