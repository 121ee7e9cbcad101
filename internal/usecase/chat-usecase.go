package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iamvkosarev/epic-tech-ai/config"
	"github.com/iamvkosarev/epic-tech-ai/internal/logger"
	"github.com/iamvkosarev/epic-tech-ai/internal/model"
)

// StorageSet is one persistence backend for sessions.
type StorageSet struct {
	Transcripts TranscriptStorage
	Counters    CounterStorage
}

func (s StorageSet) configured() bool {
	return s.Transcripts != nil && s.Counters != nil
}

type ChatUsecaseDeps struct {
	Provider CompletionProvider
	// Local keeps anonymous sessions, Remote keeps sessions of identified users.
	Local  StorageSet
	Remote StorageSet
}

// ChatUsecase hands out one live Session per storage key.
type ChatUsecase struct {
	ChatUsecaseDeps
	cfg         config.Session
	turnTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewChatUsecase(deps ChatUsecaseDeps, cfg config.Session, turnTimeout time.Duration) *ChatUsecase {
	return &ChatUsecase{
		ChatUsecaseDeps: deps,
		cfg:             cfg,
		turnTimeout:     turnTimeout,
		sessions:        make(map[string]*Session),
	}
}

// Open returns the live session for ref, loading it from storage on first use. Every Open counts as
// activity for idle eviction.
func (c *ChatUsecase) Open(ctx context.Context, ref model.SessionRef) (*Session, error) {
	key := ref.StorageKey()
	if key == "" {
		return nil, fmt.Errorf("session key is empty")
	}
	limit := c.cfg.FreeMessageLimit
	if ref.Unlimited {
		limit = 0
	}

	if session, ok := c.lookup(key, limit); ok {
		return session, nil
	}

	storage := c.storageFor(ref)
	session := NewSession(
		key, SessionDeps{
			Provider:    c.Provider,
			Transcripts: storage.Transcripts,
			Counters:    storage.Counters,
		}, SessionOptions{
			Greeting:      c.cfg.Greeting,
			SystemPrompt:  c.cfg.SystemPrompt,
			FallbackReply: c.cfg.FallbackReply,
			ErrorPrefix:   c.cfg.ErrorPrefix,
			Limit:         limit,
			TurnTimeout:   c.turnTimeout,
		},
	)
	// Load runs without c.mu so a slow store only delays this key.
	if err := session.Load(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.sessions[key]; ok {
		existing.SetLimit(limit)
		existing.touch()
		return existing, nil
	}
	c.sessions[key] = session
	logger.Debug("session opened", "session", key, "remote", ref.UserID != "" && c.Remote.configured())
	return session, nil
}

func (c *ChatUsecase) lookup(key string, limit int) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	session, ok := c.sessions[key]
	if !ok {
		return nil, false
	}
	session.SetLimit(limit)
	session.touch()
	return session, true
}

func (c *ChatUsecase) storageFor(ref model.SessionRef) StorageSet {
	if ref.UserID != "" && c.Remote.configured() {
		return c.Remote
	}
	return c.Local
}

// EvictIdle drops sessions that have been idle longer than maxIdle. Sessions with a turn in flight stay.
func (c *ChatUsecase) EvictIdle(now time.Time, maxIdle time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for key, session := range c.sessions {
		lastActive, inFlight := session.idleSince()
		if inFlight || now.Sub(lastActive) < maxIdle {
			continue
		}
		delete(c.sessions, key)
		evicted++
	}
	return evicted
}

// RunEviction evicts idle sessions every interval until ctx is done.
func (c *ChatUsecase) RunEviction(ctx context.Context, interval time.Duration) {
	if c.cfg.IdleTimeout <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := c.EvictIdle(now, c.cfg.IdleTimeout); n > 0 {
				logger.Debug("idle sessions evicted", "count", n)
			}
		}
	}
}
