package application_test

import (
	"context"
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

func TestChangePriceClosesOpenRecord(t *testing.T) {
	ctx := context.Background()
	resolver, err := application.NewPriceResolver(memory.NewPriceRepository(), nil)
	require.NoError(t, err)

	_, err = resolver.ChangePrice(ctx, billing.PriceChange{
		HostelID: hostelID, ServiceID: "water", UnitCost: decimal.NewFromInt(15000), EffectiveFrom: date(2024, time.January, 1),
	})
	assert.True(t, errors.Is(err, billing.ErrInvalidPriceChange), "first price needs a unit")

	first, err := resolver.ChangePrice(ctx, billing.PriceChange{
		HostelID: hostelID, ServiceID: "water", UnitCost: decimal.NewFromInt(15000),
		Unit: billing.UnitM3, EffectiveFrom: date(2024, time.January, 1),
	})
	require.NoError(t, err)
	assert.True(t, first.IsOpen())

	second, err := resolver.ChangePrice(ctx, billing.PriceChange{
		HostelID: hostelID, ServiceID: "water", UnitCost: decimal.NewFromInt(18000), EffectiveFrom: date(2024, time.March, 15),
	})
	require.NoError(t, err)
	assert.Equal(t, billing.UnitM3, second.Unit)

	history, err := resolver.History(ctx, hostelID, "water")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.NotNil(t, history[0].EffectiveTo)
	assert.Equal(t, date(2024, time.March, 15), *history[0].EffectiveTo)

	before, err := resolver.Resolve(ctx, hostelID, "water", date(2024, time.March, 14))
	require.NoError(t, err)
	assert.True(t, decimalEq(15000, before.UnitCost))

	onBoundary, err := resolver.Resolve(ctx, hostelID, "water", date(2024, time.March, 15))
	require.NoError(t, err)
	assert.True(t, decimalEq(18000, onBoundary.UnitCost))

	_, err = resolver.ChangePrice(ctx, billing.PriceChange{
		HostelID: hostelID, ServiceID: "water", UnitCost: decimal.NewFromInt(1), EffectiveFrom: date(2024, time.February, 1),
	})
	assert.True(t, errors.Is(err, billing.ErrInvalidPriceChange))
}

func TestResolveWithoutCoveringPrice(t *testing.T) {
	resolver, err := application.NewPriceResolver(memory.NewPriceRepository(billing.ServiceCostRecord{
		ID: "p-1", HostelID: hostelID, ServiceID: "water", UnitCost: decimal.NewFromInt(15000),
		Unit: billing.UnitM3, EffectiveFrom: date(2024, time.June, 1),
	}), nil)
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), hostelID, "water", date(2024, time.May, 31))
	var noPrice *billing.NoApplicablePriceError
	require.True(t, errors.As(err, &noPrice))
	assert.Equal(t, date(2024, time.May, 31), noPrice.BillingDate)
}

func TestResolvePrefersLatestStartOnOverlap(t *testing.T) {
	end := date(2024, time.December, 31)
	resolver, err := application.NewPriceResolver(memory.NewPriceRepository(
		billing.ServiceCostRecord{
			ID: "p-old", HostelID: hostelID, ServiceID: "water", UnitCost: decimal.NewFromInt(15000),
			Unit: billing.UnitM3, EffectiveFrom: date(2024, time.January, 1), EffectiveTo: &end,
		},
		billing.ServiceCostRecord{
			ID: "p-new", HostelID: hostelID, ServiceID: "water", UnitCost: decimal.NewFromInt(17000),
			Unit: billing.UnitM3, EffectiveFrom: date(2024, time.June, 1),
		},
	), nil)
	require.NoError(t, err)

	record, err := resolver.Resolve(context.Background(), hostelID, "water", date(2024, time.July, 1))
	require.NoError(t, err)
	assert.Equal(t, "p-new", record.ID)
}
