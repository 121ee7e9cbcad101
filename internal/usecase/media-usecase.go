package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/iamvkosarev/epic-tech-ai/internal/logger"
	"github.com/iamvkosarev/epic-tech-ai/internal/model"
)

const (
	defaultMusicGenre    = "electronic"
	defaultMusicMood     = "energetic"
	defaultMusicDuration = 30
	minMusicDuration     = 15
	maxMusicDuration     = 60
)

type MediaGenerator interface {
	Generate(ctx context.Context, req model.MediaRequest) (model.MediaResult, error)
}

type MediaUsecaseDeps struct {
	Image MediaGenerator
	Video MediaGenerator
	Music MediaGenerator
}

// MediaUsecase runs at most one generation per session and kind, and records the result in the session.
type MediaUsecase struct {
	MediaUsecaseDeps

	mu      sync.Mutex
	running map[string]struct{}
}

func NewMediaUsecase(deps MediaUsecaseDeps) *MediaUsecase {
	return &MediaUsecase{
		MediaUsecaseDeps: deps,
		running:          make(map[string]struct{}),
	}
}

// Generate produces the asset and appends it to session. The returned message is the new transcript entry.
func (m *MediaUsecase) Generate(ctx context.Context, session *Session, req model.MediaRequest) (model.Message, model.MediaResult, error) {
	req, err := normalizeMediaRequest(req)
	if err != nil {
		return model.Message{}, model.MediaResult{}, err
	}
	generator, err := m.generatorFor(req.Kind)
	if err != nil {
		return model.Message{}, model.MediaResult{}, err
	}

	runKey := session.Key() + "/" + string(req.Kind)
	if !m.acquire(runKey) {
		return model.Message{}, model.MediaResult{}, model.ErrMediaBusy
	}
	defer m.release(runKey)

	result, err := generator.Generate(ctx, req)
	if err != nil {
		return model.Message{}, model.MediaResult{}, fmt.Errorf("failed to generate %s: %w", req.Kind, err)
	}
	logger.Info("media generated", "session", session.Key(), "kind", req.Kind, "demo", result.IsDemo)

	msg, err := session.ApplyMediaResult(ctx, req.Kind, result.URL, req.Prompt)
	if err != nil {
		return model.Message{}, model.MediaResult{}, err
	}
	return msg, result, nil
}

func (m *MediaUsecase) generatorFor(kind model.MediaKind) (MediaGenerator, error) {
	var generator MediaGenerator
	switch kind {
	case model.MediaKindImage:
		generator = m.Image
	case model.MediaKindVideo:
		generator = m.Video
	case model.MediaKindAudio:
		generator = m.Music
	default:
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownMediaKind, kind)
	}
	if generator == nil {
		return nil, fmt.Errorf("%s generation is not configured", kind)
	}
	return generator, nil
}

func (m *MediaUsecase) acquire(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.running[key]; ok {
		return false
	}
	m.running[key] = struct{}{}
	return true
}

func (m *MediaUsecase) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.running, key)
}

func normalizeMediaRequest(req model.MediaRequest) (model.MediaRequest, error) {
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return req, model.ErrEmptyPrompt
	}
	if req.Kind != model.MediaKindAudio {
		return req, nil
	}
	if req.Genre == "" {
		req.Genre = defaultMusicGenre
	}
	if req.Mood == "" {
		req.Mood = defaultMusicMood
	}
	switch {
	case req.Duration == 0:
		req.Duration = defaultMusicDuration
	case req.Duration < minMusicDuration:
		req.Duration = minMusicDuration
	case req.Duration > maxMusicDuration:
		req.Duration = maxMusicDuration
	}
	return req, nil
}
