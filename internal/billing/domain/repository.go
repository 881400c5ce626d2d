package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceRepository stores service price histories.
type PriceRepository interface {
	// FindCovering returns every record of the service covering date (normally one).
	FindCovering(ctx context.Context, hostelID, serviceID string, date time.Time) ([]ServiceCostRecord, error)
	// History returns the full history ordered by EffectiveFrom.
	History(ctx context.Context, hostelID, serviceID string) ([]ServiceCostRecord, error)
	// ReplaceOpen closes the open record (when closed is non-nil) and inserts next in one write.
	// It fails with ErrConcurrentModification when the open record changed meanwhile.
	ReplaceOpen(ctx context.Context, closed *ServiceCostRecord, next ServiceCostRecord) error
}

// MeterReadingRepository stores meter readings.
type MeterReadingRepository interface {
	Get(ctx context.Context, roomID, serviceID string, period BillingPeriod) (*MeterReading, error)
	// LatestBefore returns the most recent reading of an earlier period, nil when none.
	LatestBefore(ctx context.Context, roomID, serviceID string, period BillingPeriod) (*MeterReading, error)
	// EarliestAfter returns the first reading of a later period, nil when none.
	EarliestAfter(ctx context.Context, roomID, serviceID string, period BillingPeriod) (*MeterReading, error)
	Upsert(ctx context.Context, reading MeterReading) error
	ListForRoom(ctx context.Context, roomID string, period BillingPeriod) ([]MeterReading, error)
}

// InvoiceFilter narrows invoice listings.
type InvoiceFilter struct {
	HostelID          string
	RoomID            string
	From              *BillingPeriod
	To                *BillingPeriod
	Paid              *bool
	IncludeSuperseded bool
	Limit             int
}

// InvoiceRepository stores invoices, their details and payment logs.
type InvoiceRepository interface {
	// FindActive returns the draft or finalized invoice of key, nil when none.
	FindActive(ctx context.Context, key InvoiceKey) (*Invoice, error)
	// Get returns an invoice with details, nil when none.
	Get(ctx context.Context, id string) (*Invoice, error)
	NextVersion(ctx context.Context, key InvoiceKey) (int, error)
	// Create persists an invoice with details. An active invoice already present for the key
	// yields ErrConcurrentModification.
	Create(ctx context.Context, invoice *Invoice) error
	// Supersede marks prev superseded and persists next in one write.
	Supersede(ctx context.Context, prev *Invoice, next *Invoice) error
	MarkFinalized(ctx context.Context, id, snapshotHash string, at time.Time) error
	// AppendPayment stores the new paid state together with its event. expectedPaid guards
	// against lost updates.
	AppendPayment(ctx context.Context, invoice *Invoice, expectedPaid decimal.Decimal, event PaymentEvent) error
	ListPayments(ctx context.Context, invoiceID string) ([]PaymentEvent, error)
	List(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)
	ListVersions(ctx context.Context, key InvoiceKey) ([]Invoice, error)
}
