package billing_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	billing "hostel-billing/internal/billing/domain"
)

func intPtr(v int) *int { return &v }

func TestComputePerUnit(t *testing.T) {
	calc := billing.NewLineItemCalculator(billing.CurrencyVND)

	res, err := calc.Compute(billing.LineInput{
		Method:          billing.ChargingPerUnit,
		UnitCost:        decimal.NewFromInt(3500),
		PreviousReading: 120,
		CurrentReading:  150,
	})
	require.NoError(t, err)
	assert.True(t, res.ActualCost.Equal(decimal.NewFromInt(105000)), "got %s", res.ActualCost)
	assert.Equal(t, int64(120), res.PreviousReading)
	assert.Equal(t, int64(150), res.CurrentReading)
	assert.True(t, res.Quantity.Equal(decimal.NewFromInt(30)))
}

func TestComputePerUnitZeroConsumption(t *testing.T) {
	calc := billing.NewLineItemCalculator(billing.CurrencyVND)

	res, err := calc.Compute(billing.LineInput{
		Method:          billing.ChargingPerUnit,
		UnitCost:        decimal.NewFromInt(3500),
		PreviousReading: 150,
		CurrentReading:  150,
	})
	require.NoError(t, err)
	assert.True(t, res.ActualCost.IsZero())
}

func TestComputePerUnitNegativeConsumption(t *testing.T) {
	calc := billing.NewLineItemCalculator(billing.CurrencyVND)

	_, err := calc.Compute(billing.LineInput{
		Method:          billing.ChargingPerUnit,
		UnitCost:        decimal.NewFromInt(3500),
		PreviousReading: 120,
		CurrentReading:  100,
	})
	require.ErrorIs(t, err, billing.ErrNegativeConsumption)

	var negErr *billing.NegativeConsumptionError
	require.ErrorAs(t, err, &negErr)
	assert.Equal(t, int64(120), negErr.Previous)
	assert.Equal(t, int64(100), negErr.Current)
}

func TestComputePerUnitMonotonicInReading(t *testing.T) {
	calc := billing.NewLineItemCalculator(billing.CurrencyVND)
	prev := decimal.NewFromInt(-1)
	for current := int64(100); current <= 110; current++ {
		res, err := calc.Compute(billing.LineInput{
			Method:          billing.ChargingPerUnit,
			UnitCost:        decimal.NewFromInt(3500),
			PreviousReading: 100,
			CurrentReading:  current,
		})
		require.NoError(t, err)
		assert.True(t, res.ActualCost.GreaterThan(prev), "reading %d", current)
		prev = res.ActualCost
	}
}

func TestComputeFlatIgnoresReadings(t *testing.T) {
	calc := billing.NewLineItemCalculator(billing.CurrencyVND)

	res, err := calc.Compute(billing.LineInput{
		Method:          billing.ChargingFlat,
		UnitCost:        decimal.NewFromInt(50000),
		PreviousReading: 10,
		CurrentReading:  5,
	})
	require.NoError(t, err)
	assert.True(t, res.ActualCost.Equal(decimal.NewFromInt(50000)))
	assert.Zero(t, res.PreviousReading)
	assert.Zero(t, res.CurrentReading)
}

func TestComputePerPerson(t *testing.T) {
	calc := billing.NewLineItemCalculator(billing.CurrencyVND)

	res, err := calc.Compute(billing.LineInput{
		Method:        billing.ChargingPerPerson,
		UnitCost:      decimal.NewFromInt(100000),
		OccupantCount: intPtr(3),
	})
	require.NoError(t, err)
	assert.True(t, res.ActualCost.Equal(decimal.NewFromInt(300000)))
	require.NotNil(t, res.NumberOfCustomer)
	assert.Equal(t, 3, *res.NumberOfCustomer)

	_, err = calc.Compute(billing.LineInput{
		Method:   billing.ChargingPerPerson,
		UnitCost: decimal.NewFromInt(100000),
	})
	require.ErrorIs(t, err, billing.ErrMissingOccupancy)
}

func TestComputeRoundsHalfUpOnce(t *testing.T) {
	vnd := billing.NewLineItemCalculator(billing.CurrencyVND)
	res, err := vnd.Compute(billing.LineInput{
		Method:          billing.ChargingPerUnit,
		UnitCost:        decimal.RequireFromString("2.5"),
		PreviousReading: 0,
		CurrentReading:  1,
	})
	require.NoError(t, err)
	assert.Equal(t, "3", res.ActualCost.String())

	usd := billing.NewLineItemCalculator(billing.CurrencyUSD)
	res, err = usd.Compute(billing.LineInput{
		Method:          billing.ChargingPerUnit,
		UnitCost:        decimal.RequireFromString("0.125"),
		PreviousReading: 0,
		CurrentReading:  1,
	})
	require.NoError(t, err)
	assert.Equal(t, "0.13", res.ActualCost.String())
}

func TestComputeRejectsNegativeUnitCostAndUnknownMethod(t *testing.T) {
	calc := billing.NewLineItemCalculator(billing.CurrencyVND)

	_, err := calc.Compute(billing.LineInput{Method: billing.ChargingFlat, UnitCost: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, billing.ErrNegativeValue)

	_, err = calc.Compute(billing.LineInput{Method: "tiered", UnitCost: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, billing.ErrUnknownChargingMethod)
}

func TestProrateRent(t *testing.T) {
	calc := billing.NewLineItemCalculator(billing.CurrencyVND)
	rent := decimal.NewFromInt(2000000)

	full, err := calc.ProrateRent(rent, 31, 31)
	require.NoError(t, err)
	assert.True(t, full.Equal(rent))

	half, err := calc.ProrateRent(rent, 15, 30)
	require.NoError(t, err)
	assert.True(t, half.Equal(decimal.NewFromInt(1000000)))

	part, err := calc.ProrateRent(rent, 15, 31)
	require.NoError(t, err)
	assert.Equal(t, "967742", part.String())

	_, err = calc.ProrateRent(rent, 32, 31)
	require.ErrorIs(t, err, billing.ErrInvalidPeriod)
}
