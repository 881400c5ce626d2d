package application_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostel-billing/internal/billing/application"
	billing "hostel-billing/internal/billing/domain"
	"hostel-billing/internal/billing/infrastructure/memory"
)

type mapReportCache struct {
	mu      sync.Mutex
	reports map[string]billing.RoomRevenueReport
	hits    int
}

func (c *mapReportCache) Get(_ context.Context, key string) (*billing.RoomRevenueReport, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	report, ok := c.reports[key]
	if !ok {
		return nil, false, nil
	}
	c.hits++
	return &report, true, nil
}

func (c *mapReportCache) Set(_ context.Context, key string, report billing.RoomRevenueReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reports == nil {
		c.reports = make(map[string]billing.RoomRevenueReport)
	}
	c.reports[key] = report
	return nil
}

func (c *mapReportCache) DeletePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.reports {
		if strings.HasPrefix(key, prefix) {
			delete(c.reports, key)
		}
	}
	return nil
}

func seedInvoice(t *testing.T, repo *memory.InvoiceRepository, room string, month int, total, paid int64, status billing.InvoiceStatus, version int) {
	t.Helper()
	key, err := billing.NewInvoiceKey(room, month, 2024)
	require.NoError(t, err)
	inv := &billing.Invoice{
		ID:           billing.BuildInvoiceID(key, version),
		HostelID:     hostelID,
		RoomID:       room,
		BillingMonth: month,
		BillingYear:  2024,
		Version:      version,
		Status:       status,
		Currency:     billing.CurrencyVND,
		AmountPaid:   decimal.NewFromInt(paid),
		Details:      []billing.InvoiceDetail{{ServiceID: "rent", ActualCost: decimal.NewFromInt(total), IsRentRoom: true}},
	}
	inv.RecomputeTotal()
	require.NoError(t, repo.Create(context.Background(), inv))
}

func revenueFixture(t *testing.T) (*memory.InvoiceRepository, *memory.Directory) {
	t.Helper()
	repo := memory.NewInvoiceRepository()
	seedInvoice(t, repo, "room-101", 2, 9999999, 0, billing.InvoiceStatusSuperseded, 1)
	seedInvoice(t, repo, "room-101", 3, 2155000, 2155000, billing.InvoiceStatusFinalized, 1)
	seedInvoice(t, repo, "room-102", 3, 1000000, 400000, billing.InvoiceStatusDraft, 1)
	seedInvoice(t, repo, "room-101", 4, 2050000, 2050000, billing.InvoiceStatusDraft, 1)

	dir := memory.NewDirectory()
	dir.AddMaintenance(billing.MaintenanceCost{
		ID: "m-1", HostelID: hostelID, RoomID: "room-101", Amount: decimal.NewFromInt(300000),
		IncurredAt: time.Date(2024, time.March, 10, 8, 0, 0, 0, time.UTC),
	})
	dir.AddMaintenance(billing.MaintenanceCost{
		ID: "m-2", HostelID: hostelID, Amount: decimal.NewFromInt(100000),
		IncurredAt: time.Date(2024, time.March, 31, 23, 0, 0, 0, time.UTC),
	})
	dir.AddMaintenance(billing.MaintenanceCost{
		ID: "m-3", HostelID: hostelID, RoomID: "room-101", Amount: decimal.NewFromInt(700000),
		IncurredAt: time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC),
	})
	return repo, dir
}

func march() billing.ReportPeriod {
	return billing.ReportPeriod{From: billing.BillingPeriod{Month: 3, Year: 2024}, To: billing.BillingPeriod{Month: 3, Year: 2024}}
}

func TestAggregateHostelRevenue(t *testing.T) {
	repo, dir := revenueFixture(t)
	agg, err := application.NewRevenueAggregator(repo, dir, nil, nil)
	require.NoError(t, err)

	report, err := agg.Aggregate(context.Background(), billing.Scope{Kind: billing.ScopeHostel, ID: hostelID}, march())
	require.NoError(t, err)

	assert.True(t, decimalEq(2155000, report.TotalRoomRevenue))
	assert.True(t, decimalEq(400000, report.TotalCostOfMaintenance))
	assert.True(t, decimalEq(1755000, report.TotalAllRevenue))
	assert.True(t, decimalEq(600000, report.OutstandingAmount))
	assert.True(t, decimalEq(400000, report.PartiallyPaidAmount))
	assert.Equal(t, 1, report.PaidInvoicesCount)
	assert.Equal(t, 1, report.UnpaidInvoicesCount)

	require.Len(t, report.Rooms, 2)
	assert.Equal(t, "room-101", report.Rooms[0].RoomID)
	assert.True(t, decimalEq(300000, report.Rooms[0].MaintenanceCost))
	assert.True(t, decimalEq(2155000, report.Rooms[0].Revenue))
	assert.Equal(t, "room-102", report.Rooms[1].RoomID)
	assert.True(t, decimalEq(600000, report.Rooms[1].Outstanding))
	assert.True(t, decimalEq(1000000, report.Rooms[1].InvoicedAmount))
}

func TestAggregateRoomRevenueAcrossPeriods(t *testing.T) {
	repo, dir := revenueFixture(t)
	agg, err := application.NewRevenueAggregator(repo, dir, nil, nil)
	require.NoError(t, err)

	period := billing.ReportPeriod{From: billing.BillingPeriod{Month: 1, Year: 2024}, To: billing.BillingPeriod{Month: 4, Year: 2024}}
	report, err := agg.Aggregate(context.Background(), billing.Scope{Kind: billing.ScopeRoom, ID: "room-101"}, period)
	require.NoError(t, err)

	assert.True(t, decimalEq(4205000, report.TotalRoomRevenue))
	assert.True(t, decimalEq(1000000, report.TotalCostOfMaintenance))
	assert.True(t, decimalEq(3205000, report.TotalAllRevenue))
	assert.Equal(t, 2, report.PaidInvoicesCount)
	assert.Empty(t, report.Rooms)
}

func TestAggregateRejectsBadInput(t *testing.T) {
	repo, dir := revenueFixture(t)
	agg, err := application.NewRevenueAggregator(repo, dir, nil, nil)
	require.NoError(t, err)

	reversed := billing.ReportPeriod{From: billing.BillingPeriod{Month: 4, Year: 2024}, To: billing.BillingPeriod{Month: 3, Year: 2024}}
	_, err = agg.Aggregate(context.Background(), billing.Scope{Kind: billing.ScopeHostel, ID: hostelID}, reversed)
	assert.True(t, errors.Is(err, billing.ErrInvalidPeriod))

	_, err = agg.Aggregate(context.Background(), billing.Scope{Kind: billing.ScopeHostel}, march())
	assert.True(t, errors.Is(err, billing.ErrEmptyID))
}

func TestAggregateServesFromCache(t *testing.T) {
	repo, dir := revenueFixture(t)
	cache := &mapReportCache{}
	agg, err := application.NewRevenueAggregator(repo, dir, cache, nil)
	require.NoError(t, err)
	scope := billing.Scope{Kind: billing.ScopeHostel, ID: hostelID}

	first, err := agg.Aggregate(context.Background(), scope, march())
	require.NoError(t, err)
	seedInvoice(t, repo, "room-103", 3, 500000, 500000, billing.InvoiceStatusDraft, 1)

	second, err := agg.Aggregate(context.Background(), scope, march())
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.True(t, first.TotalRoomRevenue.Equal(second.TotalRoomRevenue))
}

func TestAggregateSkipsCacheForOpenRange(t *testing.T) {
	repo, dir := revenueFixture(t)
	cache := &mapReportCache{}
	clock := func() time.Time { return time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC) }
	agg, err := application.NewRevenueAggregator(repo, dir, cache, nil, application.WithAggregatorClock(clock))
	require.NoError(t, err)
	scope := billing.Scope{Kind: billing.ScopeHostel, ID: hostelID}

	first, err := agg.Aggregate(context.Background(), scope, march())
	require.NoError(t, err)
	assert.Empty(t, cache.reports)

	seedInvoice(t, repo, "room-103", 3, 500000, 500000, billing.InvoiceStatusDraft, 1)
	second, err := agg.Aggregate(context.Background(), scope, march())
	require.NoError(t, err)
	assert.Equal(t, 0, cache.hits)
	assert.Equal(t, first.PaidInvoicesCount+first.UnpaidInvoicesCount+1, second.PaidInvoicesCount+second.UnpaidInvoicesCount)
}

func TestInvalidateReportsDropsHostelAndRoomEntries(t *testing.T) {
	repo, dir := revenueFixture(t)
	cache := &mapReportCache{}
	agg, err := application.NewRevenueAggregator(repo, dir, cache, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = agg.Aggregate(ctx, billing.Scope{Kind: billing.ScopeHostel, ID: hostelID}, march())
	require.NoError(t, err)
	_, err = agg.Aggregate(ctx, billing.Scope{Kind: billing.ScopeRoom, ID: "room-101"}, march())
	require.NoError(t, err)
	_, err = agg.Aggregate(ctx, billing.Scope{Kind: billing.ScopeRoom, ID: "room-102"}, march())
	require.NoError(t, err)
	require.Len(t, cache.reports, 3)

	agg.InvalidateReports(ctx, hostelID, "room-101")
	assert.Len(t, cache.reports, 1)
	for key := range cache.reports {
		assert.Contains(t, key, "room-102")
	}
}

func TestPaymentInvalidatesCachedClosedReport(t *testing.T) {
	ctx := context.Background()
	f, inv := buildMarchInvoice(t)
	cache := &mapReportCache{}
	agg, err := application.NewRevenueAggregator(f.invoices, f.directory, cache, nil, application.WithAggregatorClock(fixedClock))
	require.NoError(t, err)
	ledger, err := f.ledger(application.WithReportInvalidator(agg))
	require.NoError(t, err)
	scope := billing.Scope{Kind: billing.ScopeRoom, ID: roomID}

	before, err := agg.Aggregate(ctx, scope, march())
	require.NoError(t, err)
	assert.Equal(t, 0, before.PaidInvoicesCount)
	require.Len(t, cache.reports, 1)

	_, err = ledger.RecordPayment(ctx, collect(inv.ID, 2155000, "bank"))
	require.NoError(t, err)
	assert.Empty(t, cache.reports)

	after, err := agg.Aggregate(ctx, scope, march())
	require.NoError(t, err)
	assert.Equal(t, 0, cache.hits)
	assert.Equal(t, 1, after.PaidInvoicesCount)
	assert.True(t, decimalEq(2155000, after.TotalRoomRevenue))
}
