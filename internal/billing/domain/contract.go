package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// RentalContract is the tenancy agreement of a room.
// EndDate is inclusive; nil means the contract has no end.
type RentalContract struct {
	ID          string
	RoomID      string
	MonthlyRent decimal.Decimal
	StartDate   time.Time
	EndDate     *time.Time
}

// OccupiedDays counts the calendar days of period inside [StartDate, EndDate].
func (c RentalContract) OccupiedDays(period BillingPeriod) int {
	from := period.Start()
	last := period.LastDay()

	start := DateOnly(c.StartDate)
	if start.After(from) {
		from = start
	}
	if c.EndDate != nil {
		end := DateOnly(*c.EndDate)
		if end.Before(last) {
			last = end
		}
	}
	if last.Before(from) {
		return 0
	}
	return int(last.Sub(from).Hours()/24) + 1
}

// ActiveIn reports whether the contract covers at least one day of period.
func (c RentalContract) ActiveIn(period BillingPeriod) bool {
	return c.OccupiedDays(period) > 0
}

// Room is the billing view of a room.
type Room struct {
	ID            string
	HostelID      string
	Name          string
	OccupantCount *int
}

// MaintenanceCost is a cost incurred on a room or hostel.
type MaintenanceCost struct {
	ID          string
	HostelID    string
	RoomID      string
	Amount      decimal.Decimal
	Description string
	IncurredAt  time.Time
}
