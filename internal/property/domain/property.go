package property

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// Hostel is a property owned by a landlord.
type Hostel struct {
	ID         string
	LandlordID string
	Name       string
	Address    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate checks hostel invariants.
func (h Hostel) Validate() error {
	if h.ID == "" {
		return errors.New("hostel: empty id")
	}
	if h.LandlordID == "" {
		return errors.New("hostel: empty landlord id")
	}
	if h.Name == "" {
		return errors.New("hostel: empty name")
	}
	return nil
}

// Room is a rentable room of a hostel. OccupantCount is nil when unknown.
type Room struct {
	ID            string
	HostelID      string
	Name          string
	Capacity      int
	OccupantCount *int
}

// Contract is a rental agreement. EndDate is inclusive and nil while open-ended.
type Contract struct {
	ID          string
	RoomID      string
	TenantName  string
	MonthlyRent decimal.Decimal
	StartDate   time.Time
	EndDate     *time.Time
}

// MaintenanceRecord is a cost booked against a hostel, optionally a single room.
type MaintenanceRecord struct {
	ID          string
	HostelID    string
	RoomID      string
	Amount      decimal.Decimal
	Description string
	IncurredAt  time.Time
}

// HostelRepository manages hostel persistence.
type HostelRepository interface {
	Get(ctx context.Context, id string) (*Hostel, error)
	Save(ctx context.Context, hostel *Hostel) error
}

// RoomRepository reads rooms.
type RoomRepository interface {
	Get(ctx context.Context, id string) (*Room, error)
	ListByHostel(ctx context.Context, hostelID string) ([]Room, error)
}

// ContractRepository reads rental contracts.
type ContractRepository interface {
	// ActiveForRoom returns the latest contract overlapping [from, to), nil when none.
	ActiveForRoom(ctx context.Context, roomID string, from, to time.Time) (*Contract, error)
}

// MaintenanceRepository reads maintenance costs.
type MaintenanceRepository interface {
	// List returns records of the hostel incurred in [from, to). An empty roomID means every room.
	List(ctx context.Context, hostelID, roomID string, from, to time.Time) ([]MaintenanceRecord, error)
}
