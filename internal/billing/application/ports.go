package application

import (
	"context"
	"time"

	billing "hostel-billing/internal/billing/domain"
)

// ContractProvider returns the rental contract of a room.
type ContractProvider interface {
	// GetActiveContract returns the contract active in the period containing asOf, nil when none.
	GetActiveContract(ctx context.Context, roomID string, asOf time.Time) (*billing.RentalContract, error)
}

// RoomDirectory resolves rooms.
type RoomDirectory interface {
	// GetRoom returns nil when the room does not exist.
	GetRoom(ctx context.Context, roomID string) (*billing.Room, error)
	ListRooms(ctx context.Context, hostelID string) ([]billing.Room, error)
}

// ServiceCatalog lists the billable services of a hostel.
type ServiceCatalog interface {
	GetServicesForHostel(ctx context.Context, hostelID string) ([]billing.HostelService, error)
}

// MaintenanceFeed supplies maintenance costs for revenue reports.
type MaintenanceFeed interface {
	GetMaintenanceCosts(ctx context.Context, scope billing.Scope, period billing.ReportPeriod) ([]billing.MaintenanceCost, error)
}

// EventPublisher publishes billing events.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// KeyLocker provides mutual exclusion per key.
// ok is false when the key is held elsewhere; unlock must be called on every path once ok is true.
type KeyLocker interface {
	TryLock(ctx context.Context, key string) (unlock func(), ok bool, err error)
}

// ReportCache stores rendered revenue reports for a short time.
type ReportCache interface {
	Get(ctx context.Context, key string) (*billing.RoomRevenueReport, bool, error)
	Set(ctx context.Context, key string, report billing.RoomRevenueReport) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// ReportInvalidator drops cached revenue reports touched by an invoice write.
type ReportInvalidator interface {
	InvalidateReports(ctx context.Context, hostelID, roomID string)
}

// Clock returns the current time.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

// IDGenerator returns new unique identifiers.
type IDGenerator func() string
