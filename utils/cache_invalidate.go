package utils

import (
	"context"

	"github.com/redis/go-redis/v9"
)

type CacheInvalidator struct{ rdb *redis.Client }

func NewCacheInvalidator(rdb *redis.Client) *CacheInvalidator { return &CacheInvalidator{rdb} }

func (ci *CacheInvalidator) PurgeEventsList(ctx context.Context) {
	ci.purge(ctx, "cache:events:list:*")
}

// PurgeEventItem drops the cached detail of one event. Item keys embed the
// raw id, so the scan is exact.
func (ci *CacheInvalidator) PurgeEventItem(ctx context.Context, id string) {
	ci.purge(ctx, "cache:events:item:"+id+":*")
}

func (ci *CacheInvalidator) purge(ctx context.Context, pattern string) {
	if ci == nil || ci.rdb == nil {
		return
	}
	iter := ci.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		_ = ci.rdb.Del(ctx, iter.Val()).Err()
	}
}
