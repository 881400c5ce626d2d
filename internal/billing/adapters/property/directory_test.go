package property_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adapter "hostel-billing/internal/billing/adapters/property"
	billing "hostel-billing/internal/billing/domain"
	propertydomain "hostel-billing/internal/property/domain"
)

type fakeRooms struct {
	rooms map[string]propertydomain.Room
}

func (f fakeRooms) Get(_ context.Context, id string) (*propertydomain.Room, error) {
	room, ok := f.rooms[id]
	if !ok {
		return nil, nil
	}
	return &room, nil
}

func (f fakeRooms) ListByHostel(_ context.Context, hostelID string) ([]propertydomain.Room, error) {
	var out []propertydomain.Room
	for _, r := range f.rooms {
		if r.HostelID == hostelID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeContracts struct {
	gotFrom, gotTo time.Time
	contract       *propertydomain.Contract
}

func (f *fakeContracts) ActiveForRoom(_ context.Context, _ string, from, to time.Time) (*propertydomain.Contract, error) {
	f.gotFrom, f.gotTo = from, to
	return f.contract, nil
}

type fakeMaintenance struct {
	hostelID, roomID string
}

func (f *fakeMaintenance) List(_ context.Context, hostelID, roomID string, _, _ time.Time) ([]propertydomain.MaintenanceRecord, error) {
	f.hostelID, f.roomID = hostelID, roomID
	return []propertydomain.MaintenanceRecord{{ID: "m-1", HostelID: hostelID, RoomID: roomID, Amount: decimal.NewFromInt(5)}}, nil
}

func TestDirectoryMapsPropertyRecords(t *testing.T) {
	ctx := context.Background()
	occupants := 3
	rooms := fakeRooms{rooms: map[string]propertydomain.Room{
		"room-101": {ID: "room-101", HostelID: "hostel-1", Name: "101", Capacity: 4, OccupantCount: &occupants},
	}}
	contracts := &fakeContracts{contract: &propertydomain.Contract{
		ID: "c-1", RoomID: "room-101", MonthlyRent: decimal.NewFromInt(2000000), StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}}
	maintenance := &fakeMaintenance{}
	dir, err := adapter.NewDirectory(rooms, contracts, maintenance)
	require.NoError(t, err)

	room, err := dir.GetRoom(ctx, "room-101")
	require.NoError(t, err)
	require.NotNil(t, room.OccupantCount)
	assert.Equal(t, 3, *room.OccupantCount)

	missing, err := dir.GetRoom(ctx, "room-x")
	require.NoError(t, err)
	assert.Nil(t, missing)

	contract, err := dir.GetActiveContract(ctx, "room-101", time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "c-1", contract.ID)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), contracts.gotFrom)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), contracts.gotTo)

	period := billing.ReportPeriod{From: billing.BillingPeriod{Month: 3, Year: 2024}, To: billing.BillingPeriod{Month: 3, Year: 2024}}
	costs, err := dir.GetMaintenanceCosts(ctx, billing.Scope{Kind: billing.ScopeRoom, ID: "room-101"}, period)
	require.NoError(t, err)
	require.Len(t, costs, 1)
	assert.Equal(t, "hostel-1", maintenance.hostelID)
	assert.Equal(t, "room-101", maintenance.roomID)

	_, err = dir.GetMaintenanceCosts(ctx, billing.Scope{Kind: billing.ScopeRoom, ID: "room-x"}, period)
	assert.True(t, errors.Is(err, billing.ErrRoomNotFound))
}
