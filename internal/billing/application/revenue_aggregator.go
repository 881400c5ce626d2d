package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	billing "hostel-billing/internal/billing/domain"
	"hostel-billing/internal/observability/metrics"
)

// RevenueAggregator rolls invoices and maintenance costs into revenue reports.
type RevenueAggregator struct {
	invoices    billing.InvoiceRepository
	maintenance MaintenanceFeed
	cache       ReportCache
	logger      *zap.SugaredLogger
	now         Clock
}

// AggregatorOption configures the aggregator.
type AggregatorOption func(*RevenueAggregator)

// WithAggregatorClock overrides the clock that decides which ranges are still open.
func WithAggregatorClock(clock Clock) AggregatorOption {
	return func(a *RevenueAggregator) {
		if clock != nil {
			a.now = clock
		}
	}
}

// NewRevenueAggregator constructs an aggregator. cache may be nil.
func NewRevenueAggregator(invoices billing.InvoiceRepository, maintenance MaintenanceFeed, cache ReportCache, logger *zap.SugaredLogger, opts ...AggregatorOption) (*RevenueAggregator, error) {
	if invoices == nil {
		return nil, errors.New("revenue aggregator: nil invoice repo")
	}
	if maintenance == nil {
		return nil, errors.New("revenue aggregator: nil maintenance feed")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	agg := &RevenueAggregator{invoices: invoices, maintenance: maintenance, cache: cache, logger: logger, now: systemClock}
	for _, opt := range opts {
		opt(agg)
	}
	return agg, nil
}

// Aggregate computes the revenue report of scope over period.
// Only paid invoices count as revenue; unpaid balances are reported separately.
func (a *RevenueAggregator) Aggregate(ctx context.Context, scope billing.Scope, period billing.ReportPeriod) (billing.RoomRevenueReport, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveRevenueReport(result, time.Since(start))
	}()

	if err := scope.Validate(); err != nil {
		result = metrics.ResultError
		return billing.RoomRevenueReport{}, err
	}
	if err := period.Validate(); err != nil {
		result = metrics.ResultError
		return billing.RoomRevenueReport{}, err
	}

	cacheKey := reportCacheKey(scope, period)
	if a.cache != nil {
		cached, ok, err := a.cache.Get(ctx, cacheKey)
		if err != nil {
			a.logger.Warnw("revenue cache read failed", "key", cacheKey, "error", err)
		} else if ok && cached != nil {
			result = metrics.ResultCached
			return *cached, nil
		}
	}

	from, to := period.From, period.To
	filter := billing.InvoiceFilter{From: &from, To: &to}
	if scope.Kind == billing.ScopeRoom {
		filter.RoomID = scope.ID
	} else {
		filter.HostelID = scope.ID
	}
	invoices, err := a.invoices.List(ctx, filter)
	if err != nil {
		result = metrics.ResultError
		return billing.RoomRevenueReport{}, errors.Wrap(err, "revenue: list invoices")
	}
	invoices = lo.Filter(invoices, func(inv billing.Invoice, _ int) bool {
		return inv.IsActive() && period.Contains(inv.Period())
	})
	costs, err := a.maintenance.GetMaintenanceCosts(ctx, scope, period)
	if err != nil {
		result = metrics.ResultError
		return billing.RoomRevenueReport{}, errors.Wrap(err, "revenue: maintenance costs")
	}

	report := summarize(invoices, costs)
	report.Scope = scope
	report.Period = period
	report.GeneratedAt = a.now()
	if scope.Kind == billing.ScopeHostel {
		report.Rooms = roomBreakdown(invoices, costs)
	}

	// Ranges reaching the current period still receive invoices and maintenance costs.
	if a.cache != nil && period.To.Before(billing.PeriodOf(a.now())) {
		if err := a.cache.Set(ctx, cacheKey, report); err != nil {
			a.logger.Warnw("revenue cache write failed", "key", cacheKey, "error", err)
		}
	}
	return report, nil
}

// InvalidateReports drops every cached report of the hostel and of the room.
func (a *RevenueAggregator) InvalidateReports(ctx context.Context, hostelID, roomID string) {
	if a == nil || a.cache == nil {
		return
	}
	for _, scope := range []billing.Scope{{Kind: billing.ScopeHostel, ID: hostelID}, {Kind: billing.ScopeRoom, ID: roomID}} {
		if scope.ID == "" {
			continue
		}
		prefix := reportCachePrefix(scope)
		if err := a.cache.DeletePrefix(ctx, prefix); err != nil {
			a.logger.Warnw("revenue cache invalidation failed", "prefix", prefix, "error", err)
		}
	}
}

func summarize(invoices []billing.Invoice, costs []billing.MaintenanceCost) billing.RoomRevenueReport {
	paid, unpaid := lo.FilterReject(invoices, func(inv billing.Invoice, _ int) bool { return inv.IsPaid })

	report := billing.RoomRevenueReport{
		TotalRoomRevenue:       sumDecimal(paid, func(inv billing.Invoice) decimal.Decimal { return inv.TotalAmount }),
		TotalCostOfMaintenance: sumDecimal(costs, func(c billing.MaintenanceCost) decimal.Decimal { return c.Amount }),
		OutstandingAmount:      sumDecimal(unpaid, func(inv billing.Invoice) decimal.Decimal { return inv.Outstanding() }),
		PartiallyPaidAmount:    sumDecimal(unpaid, func(inv billing.Invoice) decimal.Decimal { return inv.AmountPaid }),
		PaidInvoicesCount:      len(paid),
		UnpaidInvoicesCount:    len(unpaid),
	}
	report.TotalAllRevenue = report.TotalRoomRevenue.Sub(report.TotalCostOfMaintenance)
	return report
}

func roomBreakdown(invoices []billing.Invoice, costs []billing.MaintenanceCost) []billing.RoomRevenueLine {
	byRoom := lo.GroupBy(invoices, func(inv billing.Invoice) string { return inv.RoomID })
	costsByRoom := lo.GroupBy(
		lo.Filter(costs, func(c billing.MaintenanceCost, _ int) bool { return c.RoomID != "" }),
		func(c billing.MaintenanceCost) string { return c.RoomID },
	)
	roomIDs := lo.Union(lo.Keys(byRoom), lo.Keys(costsByRoom))
	sort.Strings(roomIDs)

	lines := make([]billing.RoomRevenueLine, 0, len(roomIDs))
	for _, roomID := range roomIDs {
		summary := summarize(byRoom[roomID], costsByRoom[roomID])
		lines = append(lines, billing.RoomRevenueLine{
			RoomID:          roomID,
			Revenue:         summary.TotalRoomRevenue,
			Outstanding:     summary.OutstandingAmount,
			MaintenanceCost: summary.TotalCostOfMaintenance,
			PaidInvoices:    summary.PaidInvoicesCount,
			UnpaidInvoices:  summary.UnpaidInvoicesCount,
			InvoicedAmount:  sumDecimal(byRoom[roomID], func(inv billing.Invoice) decimal.Decimal { return inv.TotalAmount }),
			PartiallyPaid:   summary.PartiallyPaidAmount,
		})
	}
	return lines
}

func sumDecimal[T any](items []T, value func(T) decimal.Decimal) decimal.Decimal {
	return lo.Reduce(items, func(acc decimal.Decimal, item T, _ int) decimal.Decimal {
		return acc.Add(value(item))
	}, decimal.Zero)
}

func reportCacheKey(scope billing.Scope, period billing.ReportPeriod) string {
	return fmt.Sprintf("%s%s:%s", reportCachePrefix(scope), period.From, period.To)
}

func reportCachePrefix(scope billing.Scope) string {
	return fmt.Sprintf("revenue:%s:%s:", scope.Kind, scope.ID)
}
