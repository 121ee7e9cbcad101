package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

type counterDocument struct {
	Count int `json:"count"`
}

// CounterStorage shares the directory layout of TranscriptStorage.
type CounterStorage struct {
	transcripts *TranscriptStorage
}

func NewCounterStorage(transcripts *TranscriptStorage) *CounterStorage {
	return &CounterStorage{transcripts: transcripts}
}

func (c *CounterStorage) GetCounter(_ context.Context, key string) (int, error) {
	var doc counterDocument
	c.transcripts.mu.Lock()
	defer c.transcripts.mu.Unlock()
	if err := readJSON(c.transcripts.path(key, "counter"), &doc); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	return doc.Count, nil
}

func (c *CounterStorage) SetCounter(_ context.Context, key string, value int) error {
	c.transcripts.mu.Lock()
	defer c.transcripts.mu.Unlock()
	path := c.transcripts.path(key, "counter")
	if value == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to reset counter %s: %w", key, err)
		}
		return nil
	}
	return writeJSON(path, counterDocument{Count: value})
}
