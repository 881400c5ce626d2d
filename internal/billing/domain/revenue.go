package billing

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// ScopeKind selects what a revenue report covers.
type ScopeKind string

const (
	ScopeRoom   ScopeKind = "room"
	ScopeHostel ScopeKind = "hostel"
)

// Scope is a room or a hostel.
type Scope struct {
	Kind ScopeKind `json:"kind"`
	ID   string    `json:"id"`
}

func (s Scope) Validate() error {
	if s.Kind != ScopeRoom && s.Kind != ScopeHostel {
		return errors.Newf("billing: unknown scope kind %q", s.Kind)
	}
	if s.ID == "" {
		return errors.Wrap(ErrEmptyID, "scope id required")
	}
	return nil
}

// ReportPeriod is an inclusive range of billing periods.
type ReportPeriod struct {
	From BillingPeriod `json:"from"`
	To   BillingPeriod `json:"to"`
}

func (p ReportPeriod) Validate() error {
	if _, err := NewBillingPeriod(p.From.Month, p.From.Year); err != nil {
		return err
	}
	if _, err := NewBillingPeriod(p.To.Month, p.To.Year); err != nil {
		return err
	}
	if p.To.Before(p.From) {
		return errors.Wrapf(ErrInvalidPeriod, "range %s..%s is reversed", p.From, p.To)
	}
	return nil
}

// Contains reports whether period lies in the range.
func (p ReportPeriod) Contains(period BillingPeriod) bool {
	return !period.Before(p.From) && !period.After(p.To)
}

// Start returns the first instant of the range.
func (p ReportPeriod) Start() time.Time { return p.From.Start() }

// End returns the first instant after the range.
func (p ReportPeriod) End() time.Time { return p.To.End() }

// RoomRevenueLine is the per-room breakdown of a hostel report.
type RoomRevenueLine struct {
	RoomID          string          `json:"room_id"`
	Revenue         decimal.Decimal `json:"revenue"`
	Outstanding     decimal.Decimal `json:"outstanding"`
	MaintenanceCost decimal.Decimal `json:"maintenance_cost"`
	PaidInvoices    int             `json:"paid_invoices"`
	UnpaidInvoices  int             `json:"unpaid_invoices"`
	InvoicedAmount  decimal.Decimal `json:"invoiced_amount"`
	PartiallyPaid   decimal.Decimal `json:"partially_paid_amount"`
}

// RoomRevenueReport is derived on request and never treated as a source of truth.
type RoomRevenueReport struct {
	Scope                  Scope             `json:"scope"`
	Period                 ReportPeriod      `json:"period"`
	TotalRoomRevenue       decimal.Decimal   `json:"total_room_revenue"`
	TotalCostOfMaintenance decimal.Decimal   `json:"total_cost_of_maintenance"`
	TotalAllRevenue        decimal.Decimal   `json:"total_all_revenue"`
	OutstandingAmount      decimal.Decimal   `json:"outstanding_amount"`
	PartiallyPaidAmount    decimal.Decimal   `json:"partially_paid_amount"`
	PaidInvoicesCount      int               `json:"paid_invoices_count"`
	UnpaidInvoicesCount    int               `json:"unpaid_invoices_count"`
	Rooms                  []RoomRevenueLine `json:"rooms,omitempty"`
	GeneratedAt            time.Time         `json:"generated_at"`
}
