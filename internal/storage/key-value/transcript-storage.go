package key_value

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/iamvkosarev/epic-tech-ai/internal/model"
	"github.com/redis/go-redis/v9"
)

type attachmentInternal struct {
	Kind   string `json:"kind"`
	URL    string `json:"url"`
	Prompt string `json:"prompt,omitempty"`
}

type messageInternal struct {
	ID         string              `json:"id"`
	Role       string              `json:"role"`
	Content    string              `json:"content"`
	CreatedAt  time.Time           `json:"created_at"`
	Attachment *attachmentInternal `json:"attachment,omitempty"`
}

type transcriptInternal struct {
	Messages  []messageInternal `json:"messages"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// TranscriptStorage keeps one JSON document per session key in Redis.
type TranscriptStorage struct {
	rdb *redis.Client
}

func NewTranscriptStorage(rdb *redis.Client) *TranscriptStorage {
	return &TranscriptStorage{
		rdb: rdb,
	}
}

func (t *TranscriptStorage) SaveTranscript(ctx context.Context, key string, messages []model.Message) error {
	transcriptInt := transcriptInternal{
		Messages:  make([]messageInternal, 0, len(messages)),
		UpdatedAt: time.Now().UTC(),
	}
	for _, msg := range messages {
		transcriptInt.Messages = append(transcriptInt.Messages, toMessageInternal(msg))
	}
	transcriptJSON, err := json.Marshal(transcriptInt)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}
	transcriptKey := getTranscriptKey(key)
	if err = t.rdb.Set(ctx, transcriptKey, transcriptJSON, 0).Err(); err != nil {
		return fmt.Errorf("failed to save transcript %s: %w", transcriptKey, err)
	}
	return nil
}

func (t *TranscriptStorage) LoadTranscript(ctx context.Context, key string) ([]model.Message, error) {
	transcriptKey := getTranscriptKey(key)
	transcriptRaw, err := t.rdb.Get(ctx, transcriptKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrTranscriptDoesNotExist
		}
		return nil, fmt.Errorf("failed to get transcript %s: %w", transcriptKey, err)
	}
	var transcriptInt transcriptInternal
	if err = json.Unmarshal([]byte(transcriptRaw), &transcriptInt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transcript %s: %w", transcriptKey, err)
	}

	messages := make([]model.Message, 0, len(transcriptInt.Messages))
	for _, msgInt := range transcriptInt.Messages {
		msg, err := fromMessageInternal(msgInt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse transcript %s: %w", transcriptKey, err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (t *TranscriptStorage) DeleteTranscript(ctx context.Context, key string) error {
	transcriptKey := getTranscriptKey(key)
	if err := t.rdb.Del(ctx, transcriptKey).Err(); err != nil {
		return fmt.Errorf("failed to delete transcript %s: %w", transcriptKey, err)
	}
	return nil
}

func toMessageInternal(msg model.Message) messageInternal {
	msgInt := messageInternal{
		ID:        msg.ID.String(),
		Role:      msg.Role.String(),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
	if msg.Attachment != nil {
		msgInt.Attachment = &attachmentInternal{
			Kind:   string(msg.Attachment.Kind),
			URL:    msg.Attachment.URL,
			Prompt: msg.Attachment.Prompt,
		}
	}
	return msgInt
}

func fromMessageInternal(msgInt messageInternal) (model.Message, error) {
	id, err := uuid.Parse(msgInt.ID)
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to parse message id %s: %w", msgInt.ID, err)
	}
	role, err := model.ParseRole(msgInt.Role)
	if err != nil {
		return model.Message{}, err
	}
	msg := model.Message{
		ID:        id,
		Role:      role,
		Content:   msgInt.Content,
		CreatedAt: msgInt.CreatedAt,
	}
	if msgInt.Attachment != nil {
		kind, err := model.ParseMediaKind(msgInt.Attachment.Kind)
		if err != nil {
			return model.Message{}, err
		}
		msg.Attachment = &model.Attachment{
			Kind:   kind,
			URL:    msgInt.Attachment.URL,
			Prompt: msgInt.Attachment.Prompt,
		}
	}
	return msg, nil
}

func getTranscriptKey(key string) string {
	return fmt.Sprintf("chat_history_%s", key)
}
