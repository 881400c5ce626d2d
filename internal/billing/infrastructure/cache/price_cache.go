package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	billing "hostel-billing/internal/billing/domain"
)

// PriceRepository caches FindCovering lookups answered entirely by closed records.
// Closed records never change, so only an open record can make an answer stale.
type PriceRepository struct {
	billing.PriceRepository
	cache *gocache.Cache
}

// NewPriceRepository decorates next with a cache of ttl.
func NewPriceRepository(next billing.PriceRepository, ttl time.Duration) *PriceRepository {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &PriceRepository{PriceRepository: next, cache: gocache.New(ttl, 2*ttl)}
}

func (r *PriceRepository) FindCovering(ctx context.Context, hostelID, serviceID string, date time.Time) ([]billing.ServiceCostRecord, error) {
	key := hostelID + "|" + serviceID + "|" + billing.DateOnly(date).Format("2006-01-02")
	if cached, ok := r.cache.Get(key); ok {
		return cloneRecords(cached.([]billing.ServiceCostRecord)), nil
	}
	records, err := r.PriceRepository.FindCovering(ctx, hostelID, serviceID, date)
	if err != nil {
		return nil, err
	}
	if cacheable(records) {
		r.cache.SetDefault(key, cloneRecords(records))
	}
	return records, nil
}

// ReplaceOpen writes through and drops every cached answer of the service.
func (r *PriceRepository) ReplaceOpen(ctx context.Context, closed *billing.ServiceCostRecord, next billing.ServiceCostRecord) error {
	if err := r.PriceRepository.ReplaceOpen(ctx, closed, next); err != nil {
		return err
	}
	prefix := next.HostelID + "|" + next.ServiceID + "|"
	for key := range r.cache.Items() {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			r.cache.Delete(key)
		}
	}
	return nil
}

// Len reports the number of cached lookups.
func (r *PriceRepository) Len() int {
	return r.cache.ItemCount()
}

func cacheable(records []billing.ServiceCostRecord) bool {
	if len(records) == 0 {
		return false
	}
	for _, rec := range records {
		if rec.IsOpen() {
			return false
		}
	}
	return true
}

func cloneRecords(records []billing.ServiceCostRecord) []billing.ServiceCostRecord {
	out := make([]billing.ServiceCostRecord, len(records))
	for i, rec := range records {
		out[i] = rec.Clone()
	}
	return out
}
