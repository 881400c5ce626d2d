package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	billing "hostel-billing/internal/billing/domain"
)

// Directory is an in-memory stand-in for the property side: rooms, contracts,
// service catalogs and maintenance costs.
type Directory struct {
	mu          sync.RWMutex
	rooms       map[string]billing.Room
	contracts   map[string][]billing.RentalContract
	services    map[string][]billing.HostelService
	maintenance []billing.MaintenanceCost
}

// NewDirectory constructs an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		rooms:     make(map[string]billing.Room),
		contracts: make(map[string][]billing.RentalContract),
		services:  make(map[string][]billing.HostelService),
	}
}

func (d *Directory) AddRoom(room billing.Room) {
	d.mu.Lock()
	d.rooms[room.ID] = room
	d.mu.Unlock()
}

func (d *Directory) AddContract(contract billing.RentalContract) {
	d.mu.Lock()
	d.contracts[contract.RoomID] = append(d.contracts[contract.RoomID], contract)
	d.mu.Unlock()
}

func (d *Directory) SetServices(hostelID string, services ...billing.HostelService) {
	d.mu.Lock()
	d.services[hostelID] = append([]billing.HostelService(nil), services...)
	d.mu.Unlock()
}

func (d *Directory) AddMaintenance(cost billing.MaintenanceCost) {
	d.mu.Lock()
	d.maintenance = append(d.maintenance, cost)
	d.mu.Unlock()
}

func (d *Directory) GetRoom(ctx context.Context, roomID string) (*billing.Room, error) {
	_ = ctx
	d.mu.RLock()
	defer d.mu.RUnlock()
	room, ok := d.rooms[roomID]
	if !ok {
		return nil, nil
	}
	return &room, nil
}

func (d *Directory) ListRooms(ctx context.Context, hostelID string) ([]billing.Room, error) {
	_ = ctx
	d.mu.RLock()
	var out []billing.Room
	for _, room := range d.rooms {
		if room.HostelID == hostelID {
			out = append(out, room)
		}
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetActiveContract returns the latest-starting contract active in the period of asOf.
func (d *Directory) GetActiveContract(ctx context.Context, roomID string, asOf time.Time) (*billing.RentalContract, error) {
	_ = ctx
	period := billing.PeriodOf(asOf)
	d.mu.RLock()
	defer d.mu.RUnlock()
	var found *billing.RentalContract
	for _, c := range d.contracts[roomID] {
		if !c.ActiveIn(period) {
			continue
		}
		if found == nil || c.StartDate.After(found.StartDate) {
			c := c
			found = &c
		}
	}
	return found, nil
}

func (d *Directory) GetServicesForHostel(ctx context.Context, hostelID string) ([]billing.HostelService, error) {
	_ = ctx
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]billing.HostelService(nil), d.services[hostelID]...), nil
}

// GetMaintenanceCosts returns costs of scope incurred inside period.
func (d *Directory) GetMaintenanceCosts(ctx context.Context, scope billing.Scope, period billing.ReportPeriod) ([]billing.MaintenanceCost, error) {
	_ = ctx
	from, to := period.Start(), period.End()
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []billing.MaintenanceCost
	for _, cost := range d.maintenance {
		if cost.IncurredAt.Before(from) || !cost.IncurredAt.Before(to) {
			continue
		}
		if scope.Kind == billing.ScopeRoom && cost.RoomID != scope.ID {
			continue
		}
		if scope.Kind == billing.ScopeHostel && cost.HostelID != scope.ID {
			continue
		}
		out = append(out, cost)
	}
	return out, nil
}
