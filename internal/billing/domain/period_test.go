package billing_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	billing "hostel-billing/internal/billing/domain"
)

func TestBillingPeriod(t *testing.T) {
	p, err := billing.NewBillingPeriod(2, 2024)
	require.NoError(t, err)
	assert.Equal(t, 29, p.Days())
	assert.Equal(t, day(2024, 2, 29), p.LastDay())
	assert.Equal(t, "2024-01", p.Previous().String())
	assert.Equal(t, "2024-03", p.Next().String())

	dec, err := billing.NewBillingPeriod(12, 2023)
	require.NoError(t, err)
	assert.Equal(t, "2024-01", dec.Next().String())
	assert.True(t, dec.Before(p))

	_, err = billing.NewBillingPeriod(13, 2024)
	require.ErrorIs(t, err, billing.ErrInvalidPeriod)

	parsed, err := billing.ParseBillingPeriod("2024-03")
	require.NoError(t, err)
	assert.Equal(t, billing.BillingPeriod{Month: 3, Year: 2024}, parsed)

	_, err = billing.ParseBillingPeriod("03/2024")
	require.ErrorIs(t, err, billing.ErrInvalidPeriod)
}

func TestOccupiedDays(t *testing.T) {
	march := billing.BillingPeriod{Month: 3, Year: 2024}
	rent := decimal.NewFromInt(2000000)

	cases := []struct {
		name  string
		start time.Time
		end   *time.Time
		want  int
	}{
		{name: "whole month open ended", start: day(2023, 6, 1), want: 31},
		{name: "moves in mid month", start: day(2024, 3, 17), want: 15},
		{name: "moves out mid month inclusive", start: day(2023, 6, 1), end: dayPtr(2024, 3, 10), want: 10},
		{name: "in and out same month", start: day(2024, 3, 5), end: dayPtr(2024, 3, 5), want: 1},
		{name: "ended before", start: day(2023, 6, 1), end: dayPtr(2024, 2, 29), want: 0},
		{name: "starts after", start: day(2024, 4, 1), want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := billing.RentalContract{ID: "c1", RoomID: "r1", MonthlyRent: rent, StartDate: tc.start, EndDate: tc.end}
			assert.Equal(t, tc.want, c.OccupiedDays(march))
			assert.Equal(t, tc.want > 0, c.ActiveIn(march))
		})
	}
}

func TestCurrencyPrecision(t *testing.T) {
	assert.Equal(t, int32(0), billing.CurrencyVND.Precision())
	assert.Equal(t, int32(0), billing.Currency("vnd").Precision())
	assert.Equal(t, int32(2), billing.CurrencyUSD.Precision())
	assert.Equal(t, billing.CurrencyVND, billing.NormalizeCurrency(""))
	assert.Equal(t, "2155000", billing.CurrencyVND.Format(decimal.NewFromInt(2155000)))
	assert.Equal(t, "10.50", billing.CurrencyUSD.Format(decimal.RequireFromString("10.5")))
}

func TestReportPeriod(t *testing.T) {
	rp := billing.ReportPeriod{From: billing.BillingPeriod{Month: 1, Year: 2024}, To: billing.BillingPeriod{Month: 3, Year: 2024}}
	require.NoError(t, rp.Validate())
	assert.True(t, rp.Contains(billing.BillingPeriod{Month: 3, Year: 2024}))
	assert.False(t, rp.Contains(billing.BillingPeriod{Month: 4, Year: 2024}))

	reversed := billing.ReportPeriod{From: rp.To, To: rp.From}
	require.ErrorIs(t, reversed.Validate(), billing.ErrInvalidPeriod)
}
