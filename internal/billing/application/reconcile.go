package application

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	billing "hostel-billing/internal/billing/domain"
)

// Discrepancy kinds reported by Reconciler.
const (
	DiscrepancyAmountPaid = "amount_paid"
	DiscrepancyIsPaid     = "is_paid"
	DiscrepancyTotal      = "total"
)

// Discrepancy is a stored invoice field that disagrees with the value derived from its sources.
type Discrepancy struct {
	InvoiceID string
	RoomID    string
	Period    billing.BillingPeriod
	Kind      string
	Stored    string
	Derived   string
}

// Reconciler checks stored invoice state against details and payment logs.
type Reconciler struct {
	invoices billing.InvoiceRepository
	logger   *zap.SugaredLogger
}

// NewReconciler constructs a reconciler.
func NewReconciler(invoices billing.InvoiceRepository, logger *zap.SugaredLogger) (*Reconciler, error) {
	if invoices == nil {
		return nil, errors.New("reconciler: nil invoice repo")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Reconciler{invoices: invoices, logger: logger}, nil
}

// Reconcile returns the discrepancies of every invoice matching filter.
// It reports the number of invoices checked alongside.
func (r *Reconciler) Reconcile(ctx context.Context, filter billing.InvoiceFilter) ([]Discrepancy, int, error) {
	invoices, err := r.invoices.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	var out []Discrepancy
	for i := range invoices {
		inv := &invoices[i]
		events, err := r.invoices.ListPayments(ctx, inv.ID)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "reconcile: payments of %s", inv.ID)
		}
		found := checkInvoice(inv, events)
		for _, d := range found {
			r.logger.Warnw("invoice discrepancy",
				"invoice_id", d.InvoiceID,
				"kind", d.Kind,
				"stored", d.Stored,
				"derived", d.Derived,
			)
		}
		out = append(out, found...)
	}
	return out, len(invoices), nil
}

func checkInvoice(inv *billing.Invoice, events []billing.PaymentEvent) []Discrepancy {
	var out []Discrepancy
	add := func(kind string, stored, derived string) {
		out = append(out, Discrepancy{
			InvoiceID: inv.ID,
			RoomID:    inv.RoomID,
			Period:    inv.Period(),
			Kind:      kind,
			Stored:    stored,
			Derived:   derived,
		})
	}

	total := decimal.Zero
	for _, d := range inv.Details {
		total = total.Add(d.ActualCost)
	}
	if !total.Equal(inv.TotalAmount) {
		add(DiscrepancyTotal, inv.TotalAmount.String(), total.String())
	}
	net := billing.NetPaid(events)
	if !net.Equal(inv.AmountPaid) {
		add(DiscrepancyAmountPaid, inv.AmountPaid.String(), net.String())
	}
	paid := !inv.AmountPaid.LessThan(inv.TotalAmount)
	if paid != inv.IsPaid {
		add(DiscrepancyIsPaid, boolString(inv.IsPaid), boolString(paid))
	}
	return out
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
