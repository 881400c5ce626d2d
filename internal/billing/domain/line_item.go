package billing

import (
	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// LineInput carries everything needed to price one service line.
type LineInput struct {
	Method          ChargingMethod
	UnitCost        decimal.Decimal
	PreviousReading int64
	CurrentReading  int64
	OccupantCount   *int
}

// LineResult is a priced line. Readings are zeroed for non-metered methods.
type LineResult struct {
	Quantity         decimal.Decimal
	ActualCost       decimal.Decimal
	PreviousReading  int64
	CurrentReading   int64
	NumberOfCustomer *int
}

// LineItemCalculator prices service lines and prorates rent.
// Each line is rounded once to the currency minor unit.
type LineItemCalculator struct {
	currency Currency
}

// NewLineItemCalculator constructs a calculator for currency.
func NewLineItemCalculator(currency Currency) LineItemCalculator {
	if currency == "" {
		currency = CurrencyVND
	}
	return LineItemCalculator{currency: currency}
}

func (c LineItemCalculator) Currency() Currency {
	return c.currency
}

// Compute prices a single line.
func (c LineItemCalculator) Compute(in LineInput) (LineResult, error) {
	if in.UnitCost.IsNegative() {
		return LineResult{}, errors.Wrapf(ErrNegativeValue, "unit cost %s", in.UnitCost.String())
	}

	switch in.Method {
	case ChargingFlat:
		return LineResult{
			Quantity:   decimal.NewFromInt(1),
			ActualCost: c.currency.RoundMinor(in.UnitCost),
		}, nil

	case ChargingPerUnit:
		if in.PreviousReading < 0 || in.CurrentReading < 0 {
			return LineResult{}, errors.Wrapf(ErrInvalidReading, "readings must be non-negative (previous=%d current=%d)",
				in.PreviousReading, in.CurrentReading)
		}
		consumption := in.CurrentReading - in.PreviousReading
		if consumption < 0 {
			return LineResult{}, &NegativeConsumptionError{Previous: in.PreviousReading, Current: in.CurrentReading}
		}
		quantity := decimal.NewFromInt(consumption)
		return LineResult{
			Quantity:        quantity,
			ActualCost:      c.currency.RoundMinor(in.UnitCost.Mul(quantity)),
			PreviousReading: in.PreviousReading,
			CurrentReading:  in.CurrentReading,
		}, nil

	case ChargingPerPerson:
		if in.OccupantCount == nil || *in.OccupantCount < 0 {
			return LineResult{}, &MissingOccupancyError{}
		}
		occupants := *in.OccupantCount
		quantity := decimal.NewFromInt(int64(occupants))
		return LineResult{
			Quantity:         quantity,
			ActualCost:       c.currency.RoundMinor(in.UnitCost.Mul(quantity)),
			NumberOfCustomer: &occupants,
		}, nil

	default:
		return LineResult{}, errors.Wrapf(ErrUnknownChargingMethod, "%q", in.Method)
	}
}

// ProrateRent charges monthlyRent * occupiedDays / daysInPeriod, rounded once.
// A full period returns monthlyRent unchanged.
func (c LineItemCalculator) ProrateRent(monthlyRent decimal.Decimal, occupiedDays, daysInPeriod int) (decimal.Decimal, error) {
	if monthlyRent.IsNegative() {
		return decimal.Zero, errors.Wrapf(ErrNegativeValue, "monthly rent %s", monthlyRent.String())
	}
	if daysInPeriod <= 0 || occupiedDays < 0 || occupiedDays > daysInPeriod {
		return decimal.Zero, errors.Wrapf(ErrInvalidPeriod, "occupied %d of %d days", occupiedDays, daysInPeriod)
	}
	if occupiedDays == daysInPeriod {
		return c.currency.RoundMinor(monthlyRent), nil
	}
	prorated := monthlyRent.Mul(decimal.NewFromInt(int64(occupiedDays))).
		Div(decimal.NewFromInt(int64(daysInPeriod)))
	return c.currency.RoundMinor(prorated), nil
}
