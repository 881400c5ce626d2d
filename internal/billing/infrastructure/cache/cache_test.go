package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	billing "hostel-billing/internal/billing/domain"
	"hostel-billing/internal/billing/infrastructure/cache"
	"hostel-billing/internal/billing/infrastructure/memory"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPriceCacheKeepsOnlyClosedAnswers(t *testing.T) {
	ctx := context.Background()
	end := day(2024, time.March, 1)
	inner := memory.NewPriceRepository(
		billing.ServiceCostRecord{ID: "p-1", HostelID: "h1", ServiceID: "water", UnitCost: decimal.NewFromInt(15000),
			Unit: billing.UnitM3, EffectiveFrom: day(2024, time.January, 1), EffectiveTo: &end},
		billing.ServiceCostRecord{ID: "p-2", HostelID: "h1", ServiceID: "water", UnitCost: decimal.NewFromInt(17000),
			Unit: billing.UnitM3, EffectiveFrom: end},
	)
	repo := cache.NewPriceRepository(inner, time.Minute)

	closed, err := repo.FindCovering(ctx, "h1", "water", day(2024, time.February, 10))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, "p-1", closed[0].ID)
	assert.Equal(t, 1, repo.Len())

	open, err := repo.FindCovering(ctx, "h1", "water", day(2024, time.April, 10))
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, 1, repo.Len(), "open answers are not cached")

	none, err := repo.FindCovering(ctx, "h1", "water", day(2023, time.April, 10))
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.Equal(t, 1, repo.Len())

	closedOpen := open[0].Clone()
	next := day(2024, time.June, 1)
	closedOpen.EffectiveTo = &next
	require.NoError(t, repo.ReplaceOpen(ctx, &closedOpen, billing.ServiceCostRecord{
		ID: "p-3", HostelID: "h1", ServiceID: "water", UnitCost: decimal.NewFromInt(19000), Unit: billing.UnitM3, EffectiveFrom: next,
	}))
	assert.Equal(t, 0, repo.Len())
}

func TestReportCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := cache.NewReportCache(time.Minute)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	report := billing.RoomRevenueReport{
		TotalRoomRevenue: decimal.NewFromInt(100),
		Rooms:            []billing.RoomRevenueLine{{RoomID: "room-101"}},
	}
	require.NoError(t, c.Set(ctx, "k", report))
	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	got.Rooms[0].RoomID = "mutated"

	again, _, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "room-101", again.Rooms[0].RoomID)
}

func TestReportCacheDeletePrefix(t *testing.T) {
	ctx := context.Background()
	c := cache.NewReportCache(time.Minute)
	report := billing.RoomRevenueReport{TotalRoomRevenue: decimal.NewFromInt(100)}
	require.NoError(t, c.Set(ctx, "revenue:room:room-101:2024-03:2024-03", report))
	require.NoError(t, c.Set(ctx, "revenue:room:room-1010:2024-03:2024-03", report))
	require.NoError(t, c.Set(ctx, "revenue:hostel:h1:2024-03:2024-03", report))

	require.NoError(t, c.DeletePrefix(ctx, "revenue:room:room-101:"))

	_, ok, err := c.Get(ctx, "revenue:room:room-101:2024-03:2024-03")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "revenue:room:room-1010:2024-03:2024-03")
	assert.True(t, ok)
	_, ok, _ = c.Get(ctx, "revenue:hostel:h1:2024-03:2024-03")
	assert.True(t, ok)
}
