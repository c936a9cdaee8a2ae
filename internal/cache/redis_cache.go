package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"

	"lojapdv/backend/internal/domain"
)

type RedisSaleCache struct {
	client *redis.Client
}

func NewRedisSaleCache(addr string, password string, db int) *RedisSaleCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSaleCache{client: client}
}

func (c *RedisSaleCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSaleCache) Close() error {
	return c.client.Close()
}

func (c *RedisSaleCache) Get(ctx context.Context, saleID string) (*domain.Sale, bool, error) {
	val, err := c.client.Get(ctx, saleKey(saleID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "redis get sale")
	}

	var sale domain.Sale
	if err := json.Unmarshal(val, &sale); err != nil {
		return nil, false, errors.Wrap(err, "decode cached sale")
	}
	return &sale, true, nil
}

func (c *RedisSaleCache) Set(ctx context.Context, sale *domain.Sale, ttl time.Duration) error {
	if sale == nil {
		return nil
	}
	payload, err := json.Marshal(sale)
	if err != nil {
		return errors.Wrap(err, "encode sale")
	}
	return c.client.Set(ctx, saleKey(sale.ID), payload, ttl).Err()
}

func (c *RedisSaleCache) Invalidate(ctx context.Context, saleIDs ...string) error {
	if len(saleIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(saleIDs))
	for _, id := range saleIDs {
		keys = append(keys, saleKey(id))
	}
	return c.client.Del(ctx, keys...).Err()
}
