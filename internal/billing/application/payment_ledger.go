package application

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	billing "hostel-billing/internal/billing/domain"
	"hostel-billing/internal/observability/metrics"
)

// CollectMoneyCommand records money received against an invoice.
// IdempotencyKey identifies retries of one request; when empty a key is derived from the
// invoice, amount, form of transfer and submission time.
type CollectMoneyCommand struct {
	InvoiceID      string
	Amount         decimal.Decimal
	FormOfTransfer string
	SubmittedAt    time.Time
	Note           string
	IdempotencyKey string
}

func (c CollectMoneyCommand) key() string {
	if k := strings.TrimSpace(c.IdempotencyKey); k != "" {
		return k
	}
	return billing.DerivePaymentKey(c.InvoiceID, c.Amount, c.FormOfTransfer, c.SubmittedAt)
}

// PaymentLedger applies payments and reversals to invoices.
type PaymentLedger struct {
	invoices  billing.InvoiceRepository
	locks     *KeyedExecutor
	publisher EventPublisher
	reports   ReportInvalidator
	tolerance decimal.Decimal
	logger    *zap.SugaredLogger
	now       Clock
	newID     IDGenerator
}

// LedgerOption configures the ledger.
type LedgerOption func(*PaymentLedger)

// WithOverpaymentTolerance lets AmountPaid exceed TotalAmount by at most tolerance.
func WithOverpaymentTolerance(tolerance decimal.Decimal) LedgerOption {
	return func(l *PaymentLedger) {
		if !tolerance.IsNegative() {
			l.tolerance = tolerance
		}
	}
}

// WithLedgerClock overrides the clock.
func WithLedgerClock(clock Clock) LedgerOption {
	return func(l *PaymentLedger) {
		if clock != nil {
			l.now = clock
		}
	}
}

// WithReportInvalidator drops cached revenue reports after every payment or reversal.
func WithReportInvalidator(reports ReportInvalidator) LedgerOption {
	return func(l *PaymentLedger) {
		l.reports = reports
	}
}

// NewPaymentLedger constructs a ledger.
func NewPaymentLedger(invoices billing.InvoiceRepository, locks *KeyedExecutor, publisher EventPublisher, logger *zap.SugaredLogger, opts ...LedgerOption) (*PaymentLedger, error) {
	if invoices == nil {
		return nil, errors.New("payment ledger: nil invoice repo")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	ledger := &PaymentLedger{
		invoices:  invoices,
		locks:     locks,
		publisher: publisher,
		tolerance: decimal.Zero,
		logger:    logger,
		now:       systemClock,
		newID:     func() string { return "pay-" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(ledger)
	}
	return ledger, nil
}

// RecordPayment applies a payment. A rejected payment leaves the invoice untouched.
// Replaying a request with an already recorded idempotency key returns the invoice as it stands.
func (l *PaymentLedger) RecordPayment(ctx context.Context, cmd CollectMoneyCommand) (*billing.Invoice, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObservePayment(string(billing.PaymentKindPayment), result, time.Since(start))
	}()

	if !cmd.Amount.IsPositive() {
		result = metrics.ResultError
		return nil, &billing.InvalidAmountError{Amount: cmd.Amount}
	}
	invoice, err := l.load(ctx, cmd.InvoiceID)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}

	idempotencyKey := cmd.key()
	var (
		event    billing.PaymentEvent
		replayed bool
	)
	err = l.locks.Do(ctx, invoice.Key().String(), func(ctx context.Context) error {
		current, err := l.load(ctx, cmd.InvoiceID)
		if err != nil {
			return err
		}
		prior, err := l.priorPayment(ctx, current.ID, idempotencyKey, cmd)
		if err != nil {
			return err
		}
		if prior != nil {
			event, replayed, invoice = *prior, true, current
			return nil
		}

		now := l.now()
		expected := current.AmountPaid
		if err := current.ApplyPayment(cmd.Amount, cmd.FormOfTransfer, l.tolerance, now); err != nil {
			return err
		}
		submitted := cmd.SubmittedAt
		if submitted.IsZero() {
			submitted = now
		}
		event = billing.PaymentEvent{
			ID:             l.newID(),
			InvoiceID:      current.ID,
			Kind:           billing.PaymentKindPayment,
			Amount:         cmd.Amount,
			FormOfTransfer: cmd.FormOfTransfer,
			SubmittedAt:    submitted.UTC(),
			RecordedAt:     now,
			Note:           cmd.Note,
			IdempotencyKey: idempotencyKey,
		}
		if err := l.invoices.AppendPayment(ctx, current, expected, event); err != nil {
			if !errors.Is(err, billing.ErrDuplicatePayment) {
				return err
			}
			// A writer outside this lock recorded the same key first.
			latest, loadErr := l.load(ctx, cmd.InvoiceID)
			if loadErr != nil {
				return loadErr
			}
			prior, priorErr := l.priorPayment(ctx, latest.ID, idempotencyKey, cmd)
			if priorErr != nil {
				return priorErr
			}
			if prior == nil {
				return err
			}
			event, replayed, invoice = *prior, true, latest
			return nil
		}
		invoice = current
		return nil
	})
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}

	if replayed {
		result = metrics.ResultCached
		l.logger.Infow("payment replayed",
			"invoice_id", invoice.ID,
			"payment_id", event.ID,
			"idempotency_key", idempotencyKey,
		)
		return invoice, nil
	}
	l.logger.Infow("payment recorded",
		"invoice_id", invoice.ID,
		"payment_id", event.ID,
		"amount", event.Amount.String(),
		"amount_paid", invoice.AmountPaid.String(),
		"is_paid", invoice.IsPaid,
	)
	l.invalidateReports(ctx, invoice)
	l.publish(ctx, PaymentRecorded{
		InvoiceID:      invoice.ID,
		HostelID:       invoice.HostelID,
		PaymentID:      event.ID,
		Amount:         event.Amount.String(),
		AmountPaid:     invoice.AmountPaid.String(),
		IsPaid:         invoice.IsPaid,
		FormOfTransfer: event.FormOfTransfer,
		OccurredAt:     event.RecordedAt,
	})
	return invoice, nil
}

// priorPayment returns the payment already recorded under key, nil when none.
// A key reused for different money is rejected.
func (l *PaymentLedger) priorPayment(ctx context.Context, invoiceID, key string, cmd CollectMoneyCommand) (*billing.PaymentEvent, error) {
	if key == "" {
		return nil, nil
	}
	events, err := l.invoices.ListPayments(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	prior, ok := billing.FindByIdempotencyKey(events, key)
	if !ok {
		return nil, nil
	}
	if !prior.SamePayment(cmd.Amount, cmd.FormOfTransfer) {
		return nil, errors.Wrapf(billing.ErrIdempotencyKeyReused, "key %s already recorded payment %s", key, prior.ID)
	}
	return &prior, nil
}

// ReversePayment appends a reversal of paymentID. Each payment can be reversed once.
func (l *PaymentLedger) ReversePayment(ctx context.Context, invoiceID, paymentID, reason string) (*billing.Invoice, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObservePayment(string(billing.PaymentKindReversal), result, time.Since(start))
	}()

	invoice, err := l.load(ctx, invoiceID)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}

	var reversal billing.PaymentEvent
	err = l.locks.Do(ctx, invoice.Key().String(), func(ctx context.Context) error {
		current, err := l.load(ctx, invoiceID)
		if err != nil {
			return err
		}
		events, err := l.invoices.ListPayments(ctx, invoiceID)
		if err != nil {
			return err
		}
		payment, reversed, found := billing.FindPayment(events, paymentID)
		if !found {
			return errors.Wrapf(billing.ErrPaymentNotFound, "payment %s on invoice %s", paymentID, invoiceID)
		}
		if reversed {
			return errors.Wrapf(billing.ErrPaymentAlreadyReversed, "payment %s", paymentID)
		}
		now := l.now()
		expected := current.AmountPaid
		if err := current.ApplyReversal(payment.Amount, now); err != nil {
			return err
		}
		reversal = billing.PaymentEvent{
			ID:             l.newID(),
			InvoiceID:      current.ID,
			Kind:           billing.PaymentKindReversal,
			Amount:         payment.Amount,
			FormOfTransfer: payment.FormOfTransfer,
			SubmittedAt:    now,
			RecordedAt:     now,
			ReversesID:     payment.ID,
			Note:           reason,
		}
		if err := l.invoices.AppendPayment(ctx, current, expected, reversal); err != nil {
			return err
		}
		invoice = current
		return nil
	})
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}

	l.logger.Infow("payment reversed",
		"invoice_id", invoice.ID,
		"payment_id", paymentID,
		"reversal_id", reversal.ID,
		"amount", reversal.Amount.String(),
	)
	l.invalidateReports(ctx, invoice)
	l.publish(ctx, PaymentReversed{
		InvoiceID:  invoice.ID,
		HostelID:   invoice.HostelID,
		PaymentID:  paymentID,
		ReversalID: reversal.ID,
		Amount:     reversal.Amount.String(),
		AmountPaid: invoice.AmountPaid.String(),
		OccurredAt: reversal.RecordedAt,
	})
	return invoice, nil
}

// ListPayments returns the payment log of an invoice in recording order.
func (l *PaymentLedger) ListPayments(ctx context.Context, invoiceID string) ([]billing.PaymentEvent, error) {
	if _, err := l.load(ctx, invoiceID); err != nil {
		return nil, err
	}
	return l.invoices.ListPayments(ctx, invoiceID)
}

func (l *PaymentLedger) load(ctx context.Context, invoiceID string) (*billing.Invoice, error) {
	if invoiceID == "" {
		return nil, errors.Wrap(billing.ErrEmptyID, "invoice id required")
	}
	invoice, err := l.invoices.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, errors.Wrapf(billing.ErrInvoiceNotFound, "invoice %s", invoiceID)
	}
	return invoice, nil
}

func (l *PaymentLedger) invalidateReports(ctx context.Context, invoice *billing.Invoice) {
	if l.reports != nil {
		l.reports.InvalidateReports(ctx, invoice.HostelID, invoice.RoomID)
	}
}

func (l *PaymentLedger) publish(ctx context.Context, event any) {
	if l.publisher == nil {
		return
	}
	if err := l.publisher.Publish(ctx, event); err != nil {
		l.logger.Errorw("publish billing event failed", "event_type", eventName(event), "error", err)
	}
}
