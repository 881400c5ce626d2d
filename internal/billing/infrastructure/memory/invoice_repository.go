package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	billing "hostel-billing/internal/billing/domain"
)

// InvoiceRepository is an in-memory repository for invoices and payment logs.
type InvoiceRepository struct {
	mu       sync.RWMutex
	invoices map[string]*billing.Invoice
	payments map[string][]billing.PaymentEvent
}

// NewInvoiceRepository constructs a repository.
func NewInvoiceRepository() *InvoiceRepository {
	return &InvoiceRepository{
		invoices: make(map[string]*billing.Invoice),
		payments: make(map[string][]billing.PaymentEvent),
	}
}

func (r *InvoiceRepository) activeLocked(key billing.InvoiceKey) *billing.Invoice {
	for _, inv := range r.invoices {
		if inv.IsActive() && inv.Key() == key {
			return inv
		}
	}
	return nil
}

// FindActive returns the draft or finalized invoice of key.
func (r *InvoiceRepository) FindActive(ctx context.Context, key billing.InvoiceKey) (*billing.Invoice, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeLocked(key).Clone(), nil
}

// Get loads an invoice by id.
func (r *InvoiceRepository) Get(ctx context.Context, id string) (*billing.Invoice, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.invoices[id].Clone(), nil
}

// NextVersion returns one past the highest version stored for key.
func (r *InvoiceRepository) NextVersion(ctx context.Context, key billing.InvoiceKey) (int, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	maxVersion := 0
	for _, inv := range r.invoices {
		if inv.Key() == key && inv.Version > maxVersion {
			maxVersion = inv.Version
		}
	}
	return maxVersion + 1, nil
}

// Create stores a new invoice.
func (r *InvoiceRepository) Create(ctx context.Context, invoice *billing.Invoice) error {
	_ = ctx
	if invoice == nil {
		return billing.ErrNilInvoice
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.invoices[invoice.ID]; exists || r.activeLocked(invoice.Key()) != nil {
		return &billing.ConcurrentModificationError{Key: invoice.Key().String()}
	}
	r.invoices[invoice.ID] = invoice.Clone()
	return nil
}

// Supersede stores prev as superseded and next as the new active version.
func (r *InvoiceRepository) Supersede(ctx context.Context, prev *billing.Invoice, next *billing.Invoice) error {
	_ = ctx
	if prev == nil || next == nil {
		return billing.ErrNilInvoice
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.invoices[prev.ID]
	if !ok {
		return errors.Wrapf(billing.ErrInvoiceNotFound, "invoice %s", prev.ID)
	}
	if !stored.IsActive() {
		return &billing.ConcurrentModificationError{Key: prev.Key().String()}
	}
	if _, exists := r.invoices[next.ID]; exists {
		return &billing.ConcurrentModificationError{Key: next.Key().String()}
	}
	r.invoices[prev.ID] = prev.Clone()
	r.invoices[next.ID] = next.Clone()
	return nil
}

// MarkFinalized sets the finalized status and snapshot hash.
func (r *InvoiceRepository) MarkFinalized(ctx context.Context, id, snapshotHash string, at time.Time) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return errors.Wrapf(billing.ErrInvoiceNotFound, "invoice %s", id)
	}
	inv.Status = billing.InvoiceStatusFinalized
	inv.SnapshotHash = snapshotHash
	inv.FinalizedAt = at
	inv.UpdatedAt = at
	return nil
}

// AppendPayment stores the paid state and appends the event when the stored
// AmountPaid still equals expectedPaid.
func (r *InvoiceRepository) AppendPayment(ctx context.Context, invoice *billing.Invoice, expectedPaid decimal.Decimal, event billing.PaymentEvent) error {
	_ = ctx
	if invoice == nil {
		return billing.ErrNilInvoice
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.invoices[invoice.ID]
	if !ok {
		return errors.Wrapf(billing.ErrInvoiceNotFound, "invoice %s", invoice.ID)
	}
	if _, dup := billing.FindByIdempotencyKey(r.payments[invoice.ID], event.IdempotencyKey); dup {
		return errors.Wrapf(billing.ErrDuplicatePayment, "payment key on %s", invoice.Key())
	}
	if !stored.AmountPaid.Equal(expectedPaid) {
		return &billing.ConcurrentModificationError{Key: invoice.Key().String()}
	}
	stored.AmountPaid = invoice.AmountPaid
	stored.IsPaid = invoice.IsPaid
	stored.FormOfTransfer = invoice.FormOfTransfer
	stored.UpdatedAt = invoice.UpdatedAt
	r.payments[invoice.ID] = append(r.payments[invoice.ID], event)
	return nil
}

// ListPayments returns the payment log in append order.
func (r *InvoiceRepository) ListPayments(ctx context.Context, invoiceID string) ([]billing.PaymentEvent, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]billing.PaymentEvent(nil), r.payments[invoiceID]...), nil
}

// List returns invoices matching filter ordered by period, room and version.
func (r *InvoiceRepository) List(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	_ = ctx
	r.mu.RLock()
	var result []billing.Invoice
	for _, inv := range r.invoices {
		if matches(inv, filter) {
			result = append(result, *inv.Clone())
		}
	}
	r.mu.RUnlock()

	sortInvoices(result)
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// ListVersions returns every version of key, oldest first.
func (r *InvoiceRepository) ListVersions(ctx context.Context, key billing.InvoiceKey) ([]billing.Invoice, error) {
	_ = ctx
	r.mu.RLock()
	var result []billing.Invoice
	for _, inv := range r.invoices {
		if inv.Key() == key {
			result = append(result, *inv.Clone())
		}
	}
	r.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool { return result[i].Version < result[j].Version })
	return result, nil
}

// Count returns how many invoices are stored, superseded included.
func (r *InvoiceRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.invoices)
}

func matches(inv *billing.Invoice, f billing.InvoiceFilter) bool {
	if !f.IncludeSuperseded && !inv.IsActive() {
		return false
	}
	if f.HostelID != "" && inv.HostelID != f.HostelID {
		return false
	}
	if f.RoomID != "" && inv.RoomID != f.RoomID {
		return false
	}
	period := inv.Period()
	if f.From != nil && period.Before(*f.From) {
		return false
	}
	if f.To != nil && period.After(*f.To) {
		return false
	}
	if f.Paid != nil && inv.IsPaid != *f.Paid {
		return false
	}
	return true
}

func sortInvoices(items []billing.Invoice) {
	sort.Slice(items, func(i, j int) bool {
		pi, pj := items[i].Period(), items[j].Period()
		if pi != pj {
			return pi.Before(pj)
		}
		if items[i].RoomID != items[j].RoomID {
			return items[i].RoomID < items[j].RoomID
		}
		return items[i].Version < items[j].Version
	})
}
