package memory

import (
	"context"
	"sort"
	"sync"

	billing "hostel-billing/internal/billing/domain"
)

// MeterReadingRepository keeps meter readings in memory.
type MeterReadingRepository struct {
	mu       sync.RWMutex
	readings map[string]map[int]billing.MeterReading
}

// NewMeterReadingRepository constructs a repository seeded with readings.
func NewMeterReadingRepository(seed ...billing.MeterReading) *MeterReadingRepository {
	repo := &MeterReadingRepository{readings: make(map[string]map[int]billing.MeterReading)}
	for _, reading := range seed {
		_ = repo.Upsert(context.Background(), reading)
	}
	return repo
}

func readingKey(roomID, serviceID string) string {
	return roomID + "|" + serviceID
}

func (r *MeterReadingRepository) Get(ctx context.Context, roomID, serviceID string, period billing.BillingPeriod) (*billing.MeterReading, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	reading, ok := r.readings[readingKey(roomID, serviceID)][period.Ordinal()]
	if !ok {
		return nil, nil
	}
	return &reading, nil
}

// LatestBefore returns the reading of the closest earlier period.
func (r *MeterReadingRepository) LatestBefore(ctx context.Context, roomID, serviceID string, period billing.BillingPeriod) (*billing.MeterReading, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found *billing.MeterReading
	for ordinal, reading := range r.readings[readingKey(roomID, serviceID)] {
		if ordinal >= period.Ordinal() {
			continue
		}
		if found == nil || ordinal > found.Period().Ordinal() {
			reading := reading
			found = &reading
		}
	}
	return found, nil
}

// EarliestAfter returns the reading of the closest later period.
func (r *MeterReadingRepository) EarliestAfter(ctx context.Context, roomID, serviceID string, period billing.BillingPeriod) (*billing.MeterReading, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found *billing.MeterReading
	for ordinal, reading := range r.readings[readingKey(roomID, serviceID)] {
		if ordinal <= period.Ordinal() {
			continue
		}
		if found == nil || ordinal < found.Period().Ordinal() {
			reading := reading
			found = &reading
		}
	}
	return found, nil
}

// Upsert stores the reading, replacing one of the same period.
func (r *MeterReadingRepository) Upsert(ctx context.Context, reading billing.MeterReading) error {
	_ = ctx
	k := readingKey(reading.RoomID, reading.ServiceID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.readings[k] == nil {
		r.readings[k] = make(map[int]billing.MeterReading)
	}
	r.readings[k][reading.Period().Ordinal()] = reading
	return nil
}

// ListForRoom returns every reading of the room in period ordered by service.
func (r *MeterReadingRepository) ListForRoom(ctx context.Context, roomID string, period billing.BillingPeriod) ([]billing.MeterReading, error) {
	_ = ctx
	r.mu.RLock()
	var out []billing.MeterReading
	for _, byPeriod := range r.readings {
		if reading, ok := byPeriod[period.Ordinal()]; ok && reading.RoomID == roomID {
			out = append(out, reading)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ServiceID < out[j].ServiceID })
	return out, nil
}
