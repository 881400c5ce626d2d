package billing

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrNoApplicablePrice      = errors.New("billing: no applicable price")
	ErrNegativeConsumption    = errors.New("billing: negative consumption")
	ErrMissingOccupancy       = errors.New("billing: missing occupancy")
	ErrInvalidAmount          = errors.New("billing: invalid amount")
	ErrOverpayment            = errors.New("billing: overpayment")
	ErrInvoiceBuild           = errors.New("billing: invoice build failed")
	ErrConcurrentModification = errors.New("billing: concurrent modification")

	ErrInvalidPeriod          = errors.New("billing: invalid billing period")
	ErrNegativeValue          = errors.New("billing: negative value")
	ErrUnknownChargingMethod  = errors.New("billing: unknown charging method")
	ErrInvalidPriceChange     = errors.New("billing: invalid price change")
	ErrInvalidReading         = errors.New("billing: invalid meter reading")
	ErrNoActiveContract       = errors.New("billing: no active rental contract")
	ErrRoomNotFound           = errors.New("billing: room not found")
	ErrInvoiceNotFound        = errors.New("billing: invoice not found")
	ErrPaymentNotFound        = errors.New("billing: payment not found")
	ErrInvoiceSuperseded      = errors.New("billing: invoice superseded")
	ErrInvoiceHasPayments     = errors.New("billing: invoice has payments")
	ErrPaymentAlreadyReversed = errors.New("billing: payment already reversed")
	ErrPeriodAlreadyBilled    = errors.New("billing: period already billed")
	ErrDuplicatePayment       = errors.New("billing: duplicate payment")
	ErrIdempotencyKeyReused   = errors.New("billing: idempotency key reused with a different payment")
	ErrEmptyID                = errors.New("billing: empty id")
	ErrNilInvoice             = errors.New("billing: nil invoice")
)

// NoApplicablePriceError is returned when no price record covers the billing date.
type NoApplicablePriceError struct {
	HostelID    string
	ServiceID   string
	BillingDate time.Time
}

func (e *NoApplicablePriceError) Error() string {
	return fmt.Sprintf("billing: no applicable price for service %s in hostel %s on %s",
		e.ServiceID, e.HostelID, e.BillingDate.Format(dateLayout))
}

func (e *NoApplicablePriceError) Is(target error) bool { return target == ErrNoApplicablePrice }

// NegativeConsumptionError reports a meter that went backwards.
type NegativeConsumptionError struct {
	Previous int64
	Current  int64
}

func (e *NegativeConsumptionError) Error() string {
	return fmt.Sprintf("billing: negative consumption (previous=%d current=%d)", e.Previous, e.Current)
}

func (e *NegativeConsumptionError) Is(target error) bool { return target == ErrNegativeConsumption }

// MissingOccupancyError is returned for a per-person line without an occupant count.
type MissingOccupancyError struct {
	RoomID    string
	ServiceID string
}

func (e *MissingOccupancyError) Error() string {
	if e.RoomID == "" {
		return "billing: occupant count required for per-person service"
	}
	return fmt.Sprintf("billing: occupant count required for per-person service %s in room %s", e.ServiceID, e.RoomID)
}

func (e *MissingOccupancyError) Is(target error) bool { return target == ErrMissingOccupancy }

// InvalidAmountError is returned for non-positive payment amounts.
type InvalidAmountError struct {
	Amount decimal.Decimal
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("billing: payment amount must be positive, got %s", e.Amount.String())
}

func (e *InvalidAmountError) Is(target error) bool { return target == ErrInvalidAmount }

// OverpaymentError is returned when a payment would exceed the invoice total.
type OverpaymentError struct {
	InvoiceID   string
	TotalAmount decimal.Decimal
	AmountPaid  decimal.Decimal
	Attempted   decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("billing: payment of %s on invoice %s exceeds outstanding %s",
		e.Attempted.String(), e.InvoiceID, e.TotalAmount.Sub(e.AmountPaid).String())
}

func (e *OverpaymentError) Is(target error) bool { return target == ErrOverpayment }

// InvoiceBuildError wraps the first failure that aborted an invoice build.
type InvoiceBuildError struct {
	RoomID      string
	Period      BillingPeriod
	ServiceID   string
	ServiceName string
	Err         error
}

func (e *InvoiceBuildError) Error() string {
	if e.ServiceID == "" {
		return fmt.Sprintf("billing: build invoice for room %s %s: %v", e.RoomID, e.Period, e.Err)
	}
	return fmt.Sprintf("billing: build invoice for room %s %s, service %s (%s): %v",
		e.RoomID, e.Period, e.ServiceName, e.ServiceID, e.Err)
}

func (e *InvoiceBuildError) Is(target error) bool { return target == ErrInvoiceBuild }

func (e *InvoiceBuildError) Unwrap() error { return e.Err }

// ConcurrentModificationError is returned when an invoice key stayed contended past the retry budget.
type ConcurrentModificationError struct {
	Key      string
	Attempts int
}

func (e *ConcurrentModificationError) Error() string {
	if e.Attempts == 0 {
		return fmt.Sprintf("billing: concurrent modification of %s", e.Key)
	}
	return fmt.Sprintf("billing: concurrent modification of %s after %d attempts", e.Key, e.Attempts)
}

func (e *ConcurrentModificationError) Is(target error) bool {
	return target == ErrConcurrentModification
}
