package billing

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentKind distinguishes payments from reversals in the event log.
type PaymentKind string

const (
	PaymentKindPayment  PaymentKind = "payment"
	PaymentKindReversal PaymentKind = "reversal"
)

// PaymentEvent is an append-only entry of an invoice's payment log.
// Amount is always positive; Kind carries the sign.
type PaymentEvent struct {
	ID             string          `json:"id"`
	InvoiceID      string          `json:"invoice_id"`
	Kind           PaymentKind     `json:"kind"`
	Amount         decimal.Decimal `json:"amount"`
	FormOfTransfer string          `json:"form_of_transfer"`
	SubmittedAt    time.Time       `json:"submitted_at"`
	RecordedAt     time.Time       `json:"recorded_at"`
	ReversesID     string          `json:"reverses_id,omitempty"`
	Note           string          `json:"note,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// SignedAmount returns Amount for payments and -Amount for reversals.
func (e PaymentEvent) SignedAmount() decimal.Decimal {
	if e.Kind == PaymentKindReversal {
		return e.Amount.Neg()
	}
	return e.Amount
}

// NetPaid folds an event log into the net amount paid.
func NetPaid(events []PaymentEvent) decimal.Decimal {
	total := decimal.Zero
	for _, e := range events {
		total = total.Add(e.SignedAmount())
	}
	return total
}

// FindPayment returns the payment event with id and whether it was already reversed.
func FindPayment(events []PaymentEvent, id string) (payment PaymentEvent, reversed bool, found bool) {
	for _, e := range events {
		if e.ID == id && e.Kind == PaymentKindPayment {
			payment = e
			found = true
		}
		if e.Kind == PaymentKindReversal && e.ReversesID == id {
			reversed = true
		}
	}
	return payment, reversed, found
}

// DerivePaymentKey fingerprints a collect request that carries no client key.
// Requests without a submission time cannot be told apart from a second real payment and get no key.
func DerivePaymentKey(invoiceID string, amount decimal.Decimal, formOfTransfer string, submittedAt time.Time) string {
	if submittedAt.IsZero() {
		return ""
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{
		invoiceID,
		amount.String(),
		strings.ToLower(strings.TrimSpace(formOfTransfer)),
		submittedAt.UTC().Format(time.RFC3339Nano),
	}, "|")))
	return "derived:" + hex.EncodeToString(sum[:])
}

// FindByIdempotencyKey returns the payment recorded under key.
func FindByIdempotencyKey(events []PaymentEvent, key string) (PaymentEvent, bool) {
	if key == "" {
		return PaymentEvent{}, false
	}
	for _, e := range events {
		if e.Kind == PaymentKindPayment && e.IdempotencyKey == key {
			return e, true
		}
	}
	return PaymentEvent{}, false
}

// SamePayment reports whether e records the same money as a replayed request.
func (e PaymentEvent) SamePayment(amount decimal.Decimal, formOfTransfer string) bool {
	return e.Amount.Equal(amount) && strings.EqualFold(strings.TrimSpace(e.FormOfTransfer), strings.TrimSpace(formOfTransfer))
}
