package in_memory

import (
	"context"
	"sync"
)

type CounterStorage struct {
	mu       sync.Mutex
	counters map[string]int
}

func NewCounterStorage() *CounterStorage {
	return &CounterStorage{
		counters: make(map[string]int),
	}
}

func (c *CounterStorage) GetCounter(_ context.Context, key string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[key], nil
}

func (c *CounterStorage) SetCounter(_ context.Context, key string, value int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if value == 0 {
		delete(c.counters, key)
		return nil
	}
	c.counters[key] = value
	return nil
}
