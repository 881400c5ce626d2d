package http

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"hostel-billing/internal/billing/application"
	billing "hostel-billing/internal/billing/domain"
)

type buildInvoiceRequest struct {
	RoomID       string `json:"roomId" validate:"required"`
	BillingMonth int    `json:"billingMonth" validate:"required,min=1,max=12"`
	BillingYear  int    `json:"billingYear" validate:"required,min=2000,max=9999"`
}

type rebillInvoiceRequest struct {
	RoomID       string `json:"roomId" validate:"required"`
	BillingMonth int    `json:"billingMonth" validate:"required,min=1,max=12"`
	BillingYear  int    `json:"billingYear" validate:"required,min=2000,max=9999"`
	Reason       string `json:"reason" validate:"required,max=500"`
}

type billingRunRequest struct {
	HostelID     string `json:"hostelId" validate:"required"`
	BillingMonth int    `json:"billingMonth" validate:"required,min=1,max=12"`
	BillingYear  int    `json:"billingYear" validate:"required,min=2000,max=9999"`
}

// CollectMoneyInvoiceRequest records a payment against an invoice.
// DateOfSubmit accepts YYYY-MM-DD or RFC3339 and defaults to now.
// IdempotencyKey falls back to the Idempotency-Key header.
type CollectMoneyInvoiceRequest struct {
	InvoiceID      string          `json:"invoiceId" validate:"required"`
	FormOfTransfer string          `json:"formOfTransfer" validate:"required,max=64"`
	AmountPaid     decimal.Decimal `json:"amountPaid"`
	DateOfSubmit   string          `json:"dateOfSubmit"`
	Note           string          `json:"note" validate:"max=500"`
	IdempotencyKey string          `json:"idempotencyKey" validate:"max=128"`
}

type reversePaymentRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type changePriceRequest struct {
	HostelID      string          `json:"hostelId" validate:"required"`
	ServiceID     string          `json:"serviceId" validate:"required"`
	UnitCost      decimal.Decimal `json:"unitCost"`
	Unit          string          `json:"unit" validate:"required,oneof=kwh m3 flat person"`
	EffectiveFrom string          `json:"effectiveFrom" validate:"required"`
}

type recordReadingRequest struct {
	RoomID       string `json:"roomId" validate:"required"`
	ServiceID    string `json:"serviceId" validate:"required"`
	Reading      int64  `json:"reading" validate:"min=0"`
	BillingMonth int    `json:"billingMonth" validate:"required,min=1,max=12"`
	BillingYear  int    `json:"billingYear" validate:"required,min=2000,max=9999"`
}

// InvoiceDetailDto is one invoice line.
type InvoiceDetailDto struct {
	ServiceID        string `json:"serviceId"`
	ServiceName      string `json:"serviceName"`
	ChargingMethod   string `json:"chargingMethod"`
	UnitCost         string `json:"unitCost"`
	Quantity         string `json:"quantity"`
	ActualCost       string `json:"actualCost"`
	NumberOfCustomer *int   `json:"numberOfCustomer,omitempty"`
	PreviousReading  int64  `json:"previousReading"`
	CurrentReading   int64  `json:"currentReading"`
	IsRentRoom       bool   `json:"isRentRoom"`
	BillingDate      string `json:"billingDate"`
}

// InvoiceResponseDto is the full invoice view.
type InvoiceResponseDto struct {
	ID              string             `json:"id"`
	RoomID          string             `json:"roomId"`
	HostelID        string             `json:"hostelId"`
	BillingMonth    int                `json:"billingMonth"`
	BillingYear     int                `json:"billingYear"`
	Version         int                `json:"version"`
	Status          string             `json:"status"`
	Currency        string             `json:"currency"`
	TotalAmount     string             `json:"totalAmount"`
	AmountPaid      string             `json:"amountPaid"`
	IsPaid          bool               `json:"isPaid"`
	FormOfTransfer  string             `json:"formOfTransfer"`
	SnapshotHash    string             `json:"snapshotHash,omitempty"`
	SupersededBy    string             `json:"supersededBy,omitempty"`
	SupersedeReason string             `json:"supersedeReason,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
	InvoiceDetails  []InvoiceDetailDto `json:"invoiceDetails"`
}

// InvoiceSummaryDto is a list entry without details.
type InvoiceSummaryDto struct {
	ID           string `json:"id"`
	RoomID       string `json:"roomId"`
	HostelID     string `json:"hostelId"`
	BillingMonth int    `json:"billingMonth"`
	BillingYear  int    `json:"billingYear"`
	Version      int    `json:"version"`
	Status       string `json:"status"`
	TotalAmount  string `json:"totalAmount"`
	AmountPaid   string `json:"amountPaid"`
	IsPaid       bool   `json:"isPaid"`
}

// ListInvoiceResponseDto wraps invoice summaries.
type ListInvoiceResponseDto struct {
	Items []InvoiceSummaryDto `json:"items"`
	Total int                 `json:"total"`
}

// PaymentEventDto is one entry of an invoice's payment log.
type PaymentEventDto struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	Amount         string    `json:"amount"`
	FormOfTransfer string    `json:"formOfTransfer,omitempty"`
	SubmittedAt    time.Time `json:"submittedAt"`
	RecordedAt     time.Time `json:"recordedAt"`
	ReversesID     string    `json:"reversesId,omitempty"`
	Note           string    `json:"note,omitempty"`
}

type roomOutcomeDto struct {
	RoomID    string `json:"roomId"`
	InvoiceID string `json:"invoiceId,omitempty"`
	Error     string `json:"error,omitempty"`
}

type billingRunResponse struct {
	HostelID string           `json:"hostelId"`
	Period   string           `json:"period"`
	Built    int              `json:"built"`
	Failed   int              `json:"failed"`
	Outcomes []roomOutcomeDto `json:"outcomes"`
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func toInvoiceDto(invoice *billing.Invoice) InvoiceResponseDto {
	cur := invoice.Currency
	return InvoiceResponseDto{
		ID:              invoice.ID,
		RoomID:          invoice.RoomID,
		HostelID:        invoice.HostelID,
		BillingMonth:    invoice.BillingMonth,
		BillingYear:     invoice.BillingYear,
		Version:         invoice.Version,
		Status:          string(invoice.Status),
		Currency:        string(cur),
		TotalAmount:     cur.Format(invoice.TotalAmount),
		AmountPaid:      cur.Format(invoice.AmountPaid),
		IsPaid:          invoice.IsPaid,
		FormOfTransfer:  invoice.FormOfTransfer,
		SnapshotHash:    invoice.SnapshotHash,
		SupersededBy:    invoice.SupersededBy,
		SupersedeReason: invoice.SupersedeReason,
		CreatedAt:       invoice.CreatedAt,
		UpdatedAt:       invoice.UpdatedAt,
		InvoiceDetails: lo.Map(invoice.Details, func(d billing.InvoiceDetail, _ int) InvoiceDetailDto {
			return InvoiceDetailDto{
				ServiceID:        d.ServiceID,
				ServiceName:      d.ServiceName,
				ChargingMethod:   string(d.ChargingMethod),
				UnitCost:         cur.Format(d.UnitCost),
				Quantity:         d.Quantity.String(),
				ActualCost:       cur.Format(d.ActualCost),
				NumberOfCustomer: d.NumberOfCustomer,
				PreviousReading:  d.PreviousReading,
				CurrentReading:   d.CurrentReading,
				IsRentRoom:       d.IsRentRoom,
				BillingDate:      d.BillingDate.Format(dateLayout),
			}
		}),
	}
}

func toInvoiceList(invoices []billing.Invoice) ListInvoiceResponseDto {
	items := lo.Map(invoices, func(inv billing.Invoice, _ int) InvoiceSummaryDto {
		return InvoiceSummaryDto{
			ID:           inv.ID,
			RoomID:       inv.RoomID,
			HostelID:     inv.HostelID,
			BillingMonth: inv.BillingMonth,
			BillingYear:  inv.BillingYear,
			Version:      inv.Version,
			Status:       string(inv.Status),
			TotalAmount:  inv.Currency.Format(inv.TotalAmount),
			AmountPaid:   inv.Currency.Format(inv.AmountPaid),
			IsPaid:       inv.IsPaid,
		}
	})
	return ListInvoiceResponseDto{Items: items, Total: len(items)}
}

func toPaymentDtos(events []billing.PaymentEvent) []PaymentEventDto {
	return lo.Map(events, func(e billing.PaymentEvent, _ int) PaymentEventDto {
		return PaymentEventDto{
			ID:             e.ID,
			Kind:           string(e.Kind),
			Amount:         e.Amount.String(),
			FormOfTransfer: e.FormOfTransfer,
			SubmittedAt:    e.SubmittedAt,
			RecordedAt:     e.RecordedAt,
			ReversesID:     e.ReversesID,
			Note:           e.Note,
		}
	})
}

func toRunResponse(result application.RunResult) billingRunResponse {
	return billingRunResponse{
		HostelID: result.HostelID,
		Period:   result.Period.String(),
		Built:    result.Built,
		Failed:   result.Failed,
		Outcomes: lo.Map(result.Outcomes, func(o application.RoomOutcome, _ int) roomOutcomeDto {
			out := roomOutcomeDto{RoomID: o.RoomID}
			if o.Invoice != nil {
				out.InvoiceID = o.Invoice.ID
			}
			if o.Err != nil {
				out.Error = o.Err.Error()
			}
			return out
		}),
	}
}

const dateLayout = "2006-01-02"

// parseDate accepts YYYY-MM-DD or RFC3339.
func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, errors.Newf("date %q must be YYYY-MM-DD or RFC3339", value)
	}
	return t.UTC(), nil
}
