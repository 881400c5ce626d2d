package application_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostel-billing/internal/billing/application"
	billing "hostel-billing/internal/billing/domain"
)

func TestReconcileCleanLedgerHasNoDiscrepancies(t *testing.T) {
	ctx := context.Background()
	f, err := newBillingFixture()
	require.NoError(t, err)
	inv, err := f.builder.Build(ctx, roomID, 3, 2024)
	require.NoError(t, err)
	ledger, err := f.ledger()
	require.NoError(t, err)
	_, err = ledger.RecordPayment(ctx, application.CollectMoneyCommand{
		InvoiceID: inv.ID, Amount: decimal.NewFromInt(2155000), FormOfTransfer: "cash",
	})
	require.NoError(t, err)

	rec, err := application.NewReconciler(f.invoices, nil)
	require.NoError(t, err)
	found, checked, err := rec.Reconcile(ctx, billing.InvoiceFilter{HostelID: hostelID})
	require.NoError(t, err)
	assert.Equal(t, 1, checked)
	assert.Empty(t, found)
}

func TestReconcileReportsDriftedInvoice(t *testing.T) {
	ctx := context.Background()
	f, err := newBillingFixture()
	require.NoError(t, err)
	drifted := &billing.Invoice{
		ID: "inv-drift", HostelID: hostelID, RoomID: roomID, BillingMonth: 1, BillingYear: 2024,
		Version: 1, Status: billing.InvoiceStatusDraft, Currency: billing.CurrencyVND,
		TotalAmount: decimal.NewFromInt(900),
		AmountPaid:  decimal.NewFromInt(500),
		IsPaid:      true,
		Details: []billing.InvoiceDetail{
			{ServiceID: "rent", ActualCost: decimal.NewFromInt(1000), IsRentRoom: true},
		},
	}
	require.NoError(t, f.invoices.Create(ctx, drifted))

	rec, err := application.NewReconciler(f.invoices, nil)
	require.NoError(t, err)
	found, checked, err := rec.Reconcile(ctx, billing.InvoiceFilter{RoomID: roomID})
	require.NoError(t, err)
	assert.Equal(t, 1, checked)

	kinds := make(map[string]application.Discrepancy)
	for _, d := range found {
		kinds[d.Kind] = d
	}
	require.Len(t, kinds, 3)
	assert.Equal(t, "1000", kinds[application.DiscrepancyTotal].Derived)
	assert.Equal(t, "0", kinds[application.DiscrepancyAmountPaid].Derived)
	assert.Equal(t, "false", kinds[application.DiscrepancyIsPaid].Derived)
}
