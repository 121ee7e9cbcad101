// Package local persists transcripts and counters on the device running the service,
// one JSON document per session key.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/iamvkosarev/epic-tech-ai/internal/model"
)

type transcriptDocument struct {
	Messages  []model.Message `json:"messages"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type TranscriptStorage struct {
	mu  sync.Mutex
	dir string
}

func NewTranscriptStorage(dir string) (*TranscriptStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir %s: %w", dir, err)
	}
	return &TranscriptStorage{dir: dir}, nil
}

func (s *TranscriptStorage) SaveTranscript(_ context.Context, key string, messages []model.Message) error {
	doc := transcriptDocument{Messages: messages, UpdatedAt: time.Now().UTC()}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(s.path(key, "transcript"), doc)
}

func (s *TranscriptStorage) LoadTranscript(_ context.Context, key string) ([]model.Message, error) {
	var doc transcriptDocument
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := readJSON(s.path(key, "transcript"), &doc); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, model.ErrTranscriptDoesNotExist
		}
		return nil, err
	}
	return doc.Messages, nil
}

func (s *TranscriptStorage) DeleteTranscript(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(key, "transcript")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete transcript %s: %w", key, err)
	}
	return nil
}

func (s *TranscriptStorage) path(key, kind string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+"."+kind+".json")
}

// writeJSON replaces path atomically so a crash never leaves a truncated document behind.
func writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err = tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", filepath.Base(path), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err = json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", filepath.Base(path), err)
	}
	return nil
}
