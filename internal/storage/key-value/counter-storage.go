package key_value

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type CounterStorage struct {
	rdb *redis.Client
}

func NewCounterStorage(rdb *redis.Client) *CounterStorage {
	return &CounterStorage{
		rdb: rdb,
	}
}

func (c *CounterStorage) GetCounter(ctx context.Context, key string) (int, error) {
	counterKey := getCounterKey(key)
	value, err := c.rdb.Get(ctx, counterKey).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get counter %s: %w", counterKey, err)
	}
	return value, nil
}

func (c *CounterStorage) SetCounter(ctx context.Context, key string, value int) error {
	counterKey := getCounterKey(key)
	if value == 0 {
		if err := c.rdb.Del(ctx, counterKey).Err(); err != nil {
			return fmt.Errorf("failed to reset counter %s: %w", counterKey, err)
		}
		return nil
	}
	if err := c.rdb.Set(ctx, counterKey, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to save counter %s: %w", counterKey, err)
	}
	return nil
}

func getCounterKey(key string) string {
	return fmt.Sprintf("message_count_%s", key)
}
