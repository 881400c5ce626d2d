package billing

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// InvoiceStatus is the lifecycle state of an invoice version.
type InvoiceStatus string

const (
	InvoiceStatusDraft      InvoiceStatus = "draft"
	InvoiceStatusFinalized  InvoiceStatus = "finalized"
	InvoiceStatusSuperseded InvoiceStatus = "superseded"
)

// InvoiceDetail is one line of an invoice.
type InvoiceDetail struct {
	ServiceID        string          `json:"service_id"`
	ServiceName      string          `json:"service_name"`
	ChargingMethod   ChargingMethod  `json:"charging_method"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	Quantity         decimal.Decimal `json:"quantity"`
	ActualCost       decimal.Decimal `json:"actual_cost"`
	NumberOfCustomer *int            `json:"number_of_customer,omitempty"`
	PreviousReading  int64           `json:"previous_reading"`
	CurrentReading   int64           `json:"current_reading"`
	IsRentRoom       bool            `json:"is_rent_room"`
	BillingDate      time.Time       `json:"billing_date"`
}

// Invoice is a versioned bill for a room and period.
// At most one draft or finalized version exists per InvoiceKey.
type Invoice struct {
	ID              string          `json:"id"`
	HostelID        string          `json:"hostel_id"`
	RoomID          string          `json:"room_id"`
	ContractID      string          `json:"contract_id"`
	BillingMonth    int             `json:"billing_month"`
	BillingYear     int             `json:"billing_year"`
	Version         int             `json:"version"`
	Status          InvoiceStatus   `json:"status"`
	Currency        Currency        `json:"currency"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	AmountPaid      decimal.Decimal `json:"amount_paid"`
	IsPaid          bool            `json:"is_paid"`
	FormOfTransfer  string          `json:"form_of_transfer"`
	SnapshotHash    string          `json:"snapshot_hash"`
	SupersededBy    string          `json:"superseded_by,omitempty"`
	SupersedeReason string          `json:"supersede_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	FinalizedAt     time.Time       `json:"finalized_at"`
	SupersededAt    time.Time       `json:"superseded_at"`
	Details         []InvoiceDetail `json:"details"`
}

func (i *Invoice) Period() BillingPeriod {
	return BillingPeriod{Month: i.BillingMonth, Year: i.BillingYear}
}

func (i *Invoice) Key() InvoiceKey {
	return InvoiceKey{RoomID: i.RoomID, Period: i.Period()}
}

// IsActive reports whether the invoice is the live version of its key.
func (i *Invoice) IsActive() bool {
	return i.Status == InvoiceStatusDraft || i.Status == InvoiceStatusFinalized
}

// Outstanding returns TotalAmount - AmountPaid.
func (i *Invoice) Outstanding() decimal.Decimal {
	return i.TotalAmount.Sub(i.AmountPaid)
}

// RecomputeTotal sums detail costs into TotalAmount.
func (i *Invoice) RecomputeTotal() {
	total := decimal.Zero
	for _, d := range i.Details {
		total = total.Add(d.ActualCost)
	}
	i.TotalAmount = total
	i.refreshPaid()
}

// ApplyPayment adds amount to AmountPaid. tolerance bounds how far AmountPaid may exceed TotalAmount.
func (i *Invoice) ApplyPayment(amount decimal.Decimal, formOfTransfer string, tolerance decimal.Decimal, at time.Time) error {
	if !amount.IsPositive() {
		return &InvalidAmountError{Amount: amount}
	}
	if i.Status == InvoiceStatusSuperseded {
		return errors.Wrapf(ErrInvoiceSuperseded, "invoice %s", i.ID)
	}
	if tolerance.IsNegative() {
		tolerance = decimal.Zero
	}
	if i.AmountPaid.Add(amount).GreaterThan(i.TotalAmount.Add(tolerance)) {
		return &OverpaymentError{
			InvoiceID:   i.ID,
			TotalAmount: i.TotalAmount,
			AmountPaid:  i.AmountPaid,
			Attempted:   amount,
		}
	}
	i.AmountPaid = i.AmountPaid.Add(amount)
	if formOfTransfer != "" {
		i.FormOfTransfer = formOfTransfer
	}
	i.UpdatedAt = at.UTC()
	i.refreshPaid()
	return nil
}

// ApplyReversal subtracts a previously applied amount.
func (i *Invoice) ApplyReversal(amount decimal.Decimal, at time.Time) error {
	if !amount.IsPositive() {
		return &InvalidAmountError{Amount: amount}
	}
	if amount.GreaterThan(i.AmountPaid) {
		return errors.Wrapf(ErrInvalidAmount, "reversal %s exceeds paid %s", amount.String(), i.AmountPaid.String())
	}
	i.AmountPaid = i.AmountPaid.Sub(amount)
	i.UpdatedAt = at.UTC()
	i.refreshPaid()
	return nil
}

// refreshPaid keeps IsPaid derived from the amounts. With a zero tolerance AmountPaid never
// exceeds TotalAmount, so this is AmountPaid == TotalAmount.
func (i *Invoice) refreshPaid() {
	i.IsPaid = !i.AmountPaid.LessThan(i.TotalAmount)
}

// Clone returns a deep copy.
func (i *Invoice) Clone() *Invoice {
	if i == nil {
		return nil
	}
	out := *i
	if i.Details != nil {
		out.Details = make([]InvoiceDetail, len(i.Details))
		for idx, d := range i.Details {
			if d.NumberOfCustomer != nil {
				n := *d.NumberOfCustomer
				d.NumberOfCustomer = &n
			}
			out.Details[idx] = d
		}
	}
	return &out
}

// BuildInvoiceID derives a deterministic id from key and version.
func BuildInvoiceID(key InvoiceKey, version int) string {
	base := key.RoomID + "|" + key.Period.String() + "|" + strconv.Itoa(version)
	sum := sha256.Sum256([]byte(base))
	return "inv-" + hex.EncodeToString(sum[:8])
}
