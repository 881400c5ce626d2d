package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	billing "hostel-billing/internal/billing/domain"
)

// PriceRepository keeps price histories in memory.
type PriceRepository struct {
	mu      sync.RWMutex
	records map[string][]billing.ServiceCostRecord
}

// NewPriceRepository constructs a repository seeded with records.
func NewPriceRepository(seed ...billing.ServiceCostRecord) *PriceRepository {
	repo := &PriceRepository{records: make(map[string][]billing.ServiceCostRecord)}
	for _, rec := range seed {
		k := priceKey(rec.HostelID, rec.ServiceID)
		repo.records[k] = append(repo.records[k], rec.Clone())
	}
	return repo
}

func priceKey(hostelID, serviceID string) string {
	return hostelID + "|" + serviceID
}

// FindCovering returns every record covering date.
func (r *PriceRepository) FindCovering(ctx context.Context, hostelID, serviceID string, date time.Time) ([]billing.ServiceCostRecord, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []billing.ServiceCostRecord
	for _, rec := range r.records[priceKey(hostelID, serviceID)] {
		if rec.Covers(date) {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

// History returns the records ordered by EffectiveFrom.
func (r *PriceRepository) History(ctx context.Context, hostelID, serviceID string) ([]billing.ServiceCostRecord, error) {
	_ = ctx
	r.mu.RLock()
	list := r.records[priceKey(hostelID, serviceID)]
	out := make([]billing.ServiceCostRecord, 0, len(list))
	for _, rec := range list {
		out = append(out, rec.Clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].EffectiveFrom.Before(out[j].EffectiveFrom) })
	return out, nil
}

// ReplaceOpen closes the current open record and appends next.
func (r *PriceRepository) ReplaceOpen(ctx context.Context, closed *billing.ServiceCostRecord, next billing.ServiceCostRecord) error {
	_ = ctx
	k := priceKey(next.HostelID, next.ServiceID)
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.records[k]
	openIdx := -1
	for i, rec := range list {
		if rec.IsOpen() {
			openIdx = i
			break
		}
	}
	switch {
	case closed == nil && openIdx >= 0:
		return &billing.ConcurrentModificationError{Key: "price:" + k}
	case closed != nil && (openIdx < 0 || list[openIdx].ID != closed.ID):
		return &billing.ConcurrentModificationError{Key: "price:" + k}
	}
	if closed != nil {
		list[openIdx] = closed.Clone()
	}
	r.records[k] = append(list, next.Clone())
	return nil
}
