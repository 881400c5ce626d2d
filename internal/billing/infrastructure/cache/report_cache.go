package cache

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	billing "hostel-billing/internal/billing/domain"
)

// ReportCache keeps revenue reports in process memory. It is used when Redis is not configured.
type ReportCache struct {
	cache *gocache.Cache
}

// NewReportCache constructs a cache with ttl expiry.
func NewReportCache(ttl time.Duration) *ReportCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &ReportCache{cache: gocache.New(ttl, 2*ttl)}
}

func (c *ReportCache) Get(_ context.Context, key string) (*billing.RoomRevenueReport, bool, error) {
	value, ok := c.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	report := value.(billing.RoomRevenueReport)
	report.Rooms = append([]billing.RoomRevenueLine(nil), report.Rooms...)
	return &report, true, nil
}

func (c *ReportCache) Set(_ context.Context, key string, report billing.RoomRevenueReport) error {
	report.Rooms = append([]billing.RoomRevenueLine(nil), report.Rooms...)
	c.cache.SetDefault(key, report)
	return nil
}

func (c *ReportCache) DeletePrefix(_ context.Context, prefix string) error {
	for key := range c.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			c.cache.Delete(key)
		}
	}
	return nil
}
