package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	goredis "github.com/redis/go-redis/v9"

	billing "hostel-billing/internal/billing/domain"
)

// ReportCache stores revenue reports as JSON with a TTL.
type ReportCache struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

// NewReportCache constructs a cache. ttl defaults to one minute.
func NewReportCache(client goredis.UniversalClient, ttl time.Duration) *ReportCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &ReportCache{client: client, ttl: ttl}
}

func (c *ReportCache) Get(ctx context.Context, key string) (*billing.RoomRevenueReport, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "report cache: get %s", key)
	}
	var report billing.RoomRevenueReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, false, errors.Wrapf(err, "report cache: decode %s", key)
	}
	return &report, true, nil
}

func (c *ReportCache) Set(ctx context.Context, key string, report billing.RoomRevenueReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return errors.Wrap(err, "report cache: encode")
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// DeletePrefix removes every report whose key starts with prefix.
func (c *ReportCache) DeletePrefix(ctx context.Context, prefix string) error {
	iter := c.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return errors.Wrapf(err, "report cache: scan %s", prefix)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
