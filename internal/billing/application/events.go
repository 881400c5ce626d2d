package application

import (
	"fmt"
	"time"
)

// InvoiceBuilt is published when a new invoice version is persisted.
type InvoiceBuilt struct {
	InvoiceID   string    `json:"invoice_id"`
	HostelID    string    `json:"hostel_id"`
	RoomID      string    `json:"room_id"`
	Period      string    `json:"period"`
	Version     int       `json:"version"`
	TotalAmount string    `json:"total_amount"`
	Currency    string    `json:"currency"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// InvoiceSuperseded is published when a rebill replaces an invoice.
type InvoiceSuperseded struct {
	InvoiceID    string    `json:"invoice_id"`
	HostelID     string    `json:"hostel_id"`
	RoomID       string    `json:"room_id"`
	Period       string    `json:"period"`
	SupersededBy string    `json:"superseded_by"`
	Reason       string    `json:"reason"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// InvoiceFinalized is published when a draft invoice is finalized.
type InvoiceFinalized struct {
	InvoiceID    string    `json:"invoice_id"`
	HostelID     string    `json:"hostel_id"`
	RoomID       string    `json:"room_id"`
	SnapshotHash string    `json:"snapshot_hash"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// PaymentRecorded is published after a payment is appended.
type PaymentRecorded struct {
	InvoiceID      string    `json:"invoice_id"`
	HostelID       string    `json:"hostel_id"`
	PaymentID      string    `json:"payment_id"`
	Amount         string    `json:"amount"`
	AmountPaid     string    `json:"amount_paid"`
	IsPaid         bool      `json:"is_paid"`
	FormOfTransfer string    `json:"form_of_transfer"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// PaymentReversed is published after a reversal is appended.
type PaymentReversed struct {
	InvoiceID  string    `json:"invoice_id"`
	HostelID   string    `json:"hostel_id"`
	PaymentID  string    `json:"payment_id"`
	ReversalID string    `json:"reversal_id"`
	Amount     string    `json:"amount"`
	AmountPaid string    `json:"amount_paid"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventSamples lists every billing event for registry registration.
func EventSamples() []any {
	return []any{InvoiceBuilt{}, InvoiceSuperseded{}, InvoiceFinalized{}, PaymentRecorded{}, PaymentReversed{}}
}

func eventName(event any) string {
	return fmt.Sprintf("%T", event)
}
