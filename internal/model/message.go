package model

import (
	"time"

	"github.com/google/uuid"
)

// Message is one transcript entry. Content of an assistant entry grows only while Streaming is set.
type Message struct {
	ID         uuid.UUID   `json:"id"`
	Role       Role        `json:"role"`
	Content    string      `json:"content"`
	CreatedAt  time.Time   `json:"createdAt"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Streaming  bool        `json:"streaming,omitempty"`
}

// Attachment is a generated media asset carried by an assistant entry.
type Attachment struct {
	Kind   MediaKind `json:"kind"`
	URL    string    `json:"url"`
	Prompt string    `json:"prompt,omitempty"`
}

func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.New(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// SessionRef addresses a conversation. UserID is the opaque identity supplied by an auth collaborator,
// empty for anonymous visitors.
type SessionRef struct {
	Key       string
	UserID    string
	Unlimited bool
}

// StorageKey is the key the transcript is persisted under.
func (r SessionRef) StorageKey() string {
	if r.UserID != "" {
		return "user:" + r.UserID
	}
	return r.Key
}

// Usage reports the free-tier counter. A zero Limit means unlimited.
type Usage struct {
	Used  int `json:"used"`
	Limit int `json:"limit"`
}

func (u Usage) Exhausted() bool {
	return u.Limit > 0 && u.Used >= u.Limit
}
