package property

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	billing "hostel-billing/internal/billing/domain"
	propertydomain "hostel-billing/internal/property/domain"
)

// Directory adapts the property repositories to the billing ports.
type Directory struct {
	rooms       propertydomain.RoomRepository
	contracts   propertydomain.ContractRepository
	maintenance propertydomain.MaintenanceRepository
}

// NewDirectory constructs an adapter.
func NewDirectory(rooms propertydomain.RoomRepository, contracts propertydomain.ContractRepository, maintenance propertydomain.MaintenanceRepository) (*Directory, error) {
	if rooms == nil {
		return nil, errors.New("property directory: nil room repo")
	}
	if contracts == nil {
		return nil, errors.New("property directory: nil contract repo")
	}
	if maintenance == nil {
		return nil, errors.New("property directory: nil maintenance repo")
	}
	return &Directory{rooms: rooms, contracts: contracts, maintenance: maintenance}, nil
}

func (d *Directory) GetRoom(ctx context.Context, roomID string) (*billing.Room, error) {
	room, err := d.rooms.Get(ctx, roomID)
	if err != nil || room == nil {
		return nil, err
	}
	out := toBillingRoom(*room)
	return &out, nil
}

func (d *Directory) ListRooms(ctx context.Context, hostelID string) ([]billing.Room, error) {
	rooms, err := d.rooms.ListByHostel(ctx, hostelID)
	if err != nil {
		return nil, err
	}
	out := make([]billing.Room, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, toBillingRoom(room))
	}
	return out, nil
}

// GetActiveContract returns the contract overlapping the calendar month of asOf.
func (d *Directory) GetActiveContract(ctx context.Context, roomID string, asOf time.Time) (*billing.RentalContract, error) {
	period := billing.PeriodOf(asOf)
	contract, err := d.contracts.ActiveForRoom(ctx, roomID, period.Start(), period.End())
	if err != nil || contract == nil {
		return nil, err
	}
	return &billing.RentalContract{
		ID:          contract.ID,
		RoomID:      contract.RoomID,
		MonthlyRent: contract.MonthlyRent,
		StartDate:   contract.StartDate,
		EndDate:     contract.EndDate,
	}, nil
}

// GetMaintenanceCosts reads the costs booked in [period.Start, period.End).
// A room scope needs the room's hostel first.
func (d *Directory) GetMaintenanceCosts(ctx context.Context, scope billing.Scope, period billing.ReportPeriod) ([]billing.MaintenanceCost, error) {
	hostelID, roomID := scope.ID, ""
	if scope.Kind == billing.ScopeRoom {
		room, err := d.rooms.Get(ctx, scope.ID)
		if err != nil {
			return nil, err
		}
		if room == nil {
			return nil, errors.Wrapf(billing.ErrRoomNotFound, "room %s", scope.ID)
		}
		hostelID, roomID = room.HostelID, room.ID
	}
	records, err := d.maintenance.List(ctx, hostelID, roomID, period.Start(), period.End())
	if err != nil {
		return nil, err
	}
	out := make([]billing.MaintenanceCost, 0, len(records))
	for _, r := range records {
		out = append(out, billing.MaintenanceCost{
			ID:          r.ID,
			HostelID:    r.HostelID,
			RoomID:      r.RoomID,
			Amount:      r.Amount,
			Description: r.Description,
			IncurredAt:  r.IncurredAt,
		})
	}
	return out, nil
}

func toBillingRoom(room propertydomain.Room) billing.Room {
	out := billing.Room{ID: room.ID, HostelID: room.HostelID, Name: room.Name}
	if room.OccupantCount != nil {
		n := *room.OccupantCount
		out.OccupantCount = &n
	}
	return out
}
