package in_memory

import (
	"context"
	"sync"

	"github.com/iamvkosarev/epic-tech-ai/internal/model"
)

type TranscriptStorage struct {
	mu          sync.RWMutex
	transcripts map[string][]model.Message
}

func NewTranscriptStorage() *TranscriptStorage {
	return &TranscriptStorage{
		transcripts: make(map[string][]model.Message),
	}
}

func (s *TranscriptStorage) SaveTranscript(_ context.Context, key string, messages []model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts[key] = cloneMessages(messages)
	return nil
}

func (s *TranscriptStorage) LoadTranscript(_ context.Context, key string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	messages, ok := s.transcripts[key]
	if !ok {
		return nil, model.ErrTranscriptDoesNotExist
	}
	return cloneMessages(messages), nil
}

func (s *TranscriptStorage) DeleteTranscript(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transcripts, key)
	return nil
}

func cloneMessages(messages []model.Message) []model.Message {
	copied := make([]model.Message, len(messages))
	for i, msg := range messages {
		if msg.Attachment != nil {
			attachment := *msg.Attachment
			msg.Attachment = &attachment
		}
		copied[i] = msg
	}
	return copied
}
