package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/iamvkosarev/epic-tech-ai/internal/logger"
	"github.com/iamvkosarev/epic-tech-ai/internal/model"
	"github.com/sourcegraph/conc"
)

type TranscriptStorage interface {
	SaveTranscript(ctx context.Context, key string, messages []model.Message) error
	LoadTranscript(ctx context.Context, key string) ([]model.Message, error)
	DeleteTranscript(ctx context.Context, key string) error
}

type CounterStorage interface {
	GetCounter(ctx context.Context, key string) (int, error)
	SetCounter(ctx context.Context, key string, value int) error
}

// CompletionProvider sends fragments of the reply to deltas in arrival order and returns when the
// reply is complete. It must not close deltas.
type CompletionProvider interface {
	Complete(ctx context.Context, req model.CompletionRequest, deltas chan<- string) error
}

// TurnUpdate is a snapshot of the assistant entry of a running turn. The last update of a turn has Done set.
type TurnUpdate struct {
	Message model.Message
	Done    bool
}

type SessionDeps struct {
	Provider    CompletionProvider
	Transcripts TranscriptStorage
	Counters    CounterStorage
}

type SessionOptions struct {
	Greeting      string
	SystemPrompt  string
	FallbackReply string
	ErrorPrefix   string
	Limit         int
	TurnTimeout   time.Duration
}

// Session owns one transcript and allows at most one completion request in flight.
type Session struct {
	SessionDeps
	key  string
	opts SessionOptions

	mu         sync.Mutex
	transcript []model.Message
	inFlight   bool
	counter    int
	revision   uint64
	lastActive time.Time

	saveMu    sync.Mutex
	savedRevs uint64
}

// NewSession returns a session seeded with the greeting. Call Load to restore persisted state.
func NewSession(key string, deps SessionDeps, opts SessionOptions) *Session {
	s := &Session{
		SessionDeps: deps,
		key:         key,
		opts:        opts,
		lastActive:  time.Now(),
	}
	s.transcript = []model.Message{s.seed()}
	return s
}

func (s *Session) Key() string {
	return s.key
}

// Load replaces the in-memory state with the persisted transcript and counter.
// A missing transcript leaves the seed greeting in place.
func (s *Session) Load(ctx context.Context) error {
	var messages []model.Message
	if s.Transcripts != nil {
		loaded, err := s.Transcripts.LoadTranscript(ctx, s.key)
		if err != nil && !errors.Is(err, model.ErrTranscriptDoesNotExist) {
			return fmt.Errorf("failed to load transcript %s: %w", s.key, err)
		}
		messages = loaded
	}

	counter := 0
	if s.Counters != nil {
		value, err := s.Counters.GetCounter(ctx, s.key)
		if err != nil {
			logger.Warn("failed to load message counter, starting from zero", "session", s.key, "error", err)
		} else {
			counter = value
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(messages) == 0 {
		messages = []model.Message{s.seed()}
	}
	for i := range messages {
		if messages[i].Streaming {
			messages[i].Streaming = false
			if messages[i].Content == "" {
				messages[i].Content = s.opts.FallbackReply
			}
		}
	}
	s.transcript = messages
	s.counter = counter
	return nil
}

// Submit appends text as a user entry and starts one completion turn. Rejections (empty text, a turn
// already in flight, the message limit) return a model error and change nothing.
//
// The returned channel carries the placeholder after every increment and is closed once the entry is
// final. Callers must drain it or cancel ctx; after ctx is done updates are dropped but the turn still
// runs to the end.
func (s *Session) Submit(ctx context.Context, text string) (<-chan TurnUpdate, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, model.ErrEmptyInput
	}

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return nil, model.ErrTurnInFlight
	}
	if s.usageLocked().Exhausted() {
		s.mu.Unlock()
		return nil, model.ErrMessageLimitReached
	}

	req := model.CompletionRequest{
		SystemPrompt: s.opts.SystemPrompt,
		History:      cloneMessages(s.transcript),
		UserText:     text,
	}
	placeholder := model.NewMessage(model.RoleAssistant, "")
	placeholder.Streaming = true
	s.transcript = append(s.transcript, model.NewMessage(model.RoleUser, text), placeholder)
	s.counter++
	counter := s.counter
	s.inFlight = true
	s.lastActive = time.Now()
	snapshot, revision := s.snapshotLocked()
	s.mu.Unlock()

	persistCtx := context.WithoutCancel(ctx)
	if s.Counters != nil {
		if err := s.Counters.SetCounter(persistCtx, s.key, counter); err != nil {
			logger.Warn("failed to save message counter", "session", s.key, "error", err)
		}
	}
	s.save(persistCtx, snapshot, revision)

	updates := make(chan TurnUpdate)
	go s.runTurn(ctx, placeholder.ID, req, updates)
	return updates, nil
}

func (s *Session) runTurn(ctx context.Context, placeholderID uuid.UUID, req model.CompletionRequest, updates chan<- TurnUpdate) {
	defer close(updates)

	turnCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if s.opts.TurnTimeout > 0 {
		turnCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), s.opts.TurnTimeout)
	}
	defer cancel()

	deltas := make(chan string)
	var providerErr error
	wg := conc.NewWaitGroup()
	wg.Go(
		func() {
			defer close(deltas)
			if s.Provider == nil {
				providerErr = model.ErrMissingCredential
				return
			}
			providerErr = s.Provider.Complete(turnCtx, req, deltas)
		},
	)
	wg.Go(
		func() {
			for delta := range deltas {
				if delta == "" {
					continue
				}
				if snapshot, ok := s.appendDelta(placeholderID, delta); ok {
					publish(ctx, updates, TurnUpdate{Message: snapshot})
				}
			}
		},
	)
	if recovered := wg.WaitAndRecover(); recovered != nil {
		providerErr = recovered.AsError()
	}
	if providerErr != nil && errors.Is(turnCtx.Err(), context.DeadlineExceeded) {
		providerErr = fmt.Errorf("%w: %w", errTurnTimeout, providerErr)
	}

	final := s.finalize(context.WithoutCancel(ctx), placeholderID, providerErr)
	publish(ctx, updates, TurnUpdate{Message: final, Done: true})
}

var errTurnTimeout = errors.New("the assistant took too long to answer")

func publish(ctx context.Context, updates chan<- TurnUpdate, update TurnUpdate) {
	if ctx.Err() != nil {
		return
	}
	select {
	case updates <- update:
	case <-ctx.Done():
	}
}

func (s *Session) appendDelta(placeholderID uuid.UUID, delta string) (model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(placeholderID)
	if idx < 0 || !s.transcript[idx].Streaming {
		return model.Message{}, false
	}
	s.transcript[idx].Content += delta
	return s.transcript[idx], true
}

func (s *Session) finalize(ctx context.Context, placeholderID uuid.UUID, turnErr error) model.Message {
	s.mu.Lock()
	idx := s.indexLocked(placeholderID)
	if idx < 0 {
		s.inFlight = false
		s.mu.Unlock()
		return model.Message{}
	}
	msg := &s.transcript[idx]
	switch {
	case turnErr != nil:
		msg.Content = s.opts.ErrorPrefix + describeFailure(turnErr)
		logger.Error("completion failed", "session", s.key, "error", turnErr)
	case strings.TrimSpace(msg.Content) == "":
		msg.Content = s.opts.FallbackReply
	}
	msg.Streaming = false
	final := *msg
	snapshot, revision := s.snapshotLocked()
	s.inFlight = false
	s.lastActive = time.Now()
	s.mu.Unlock()

	s.save(ctx, snapshot, revision)
	return final
}

func describeFailure(err error) string {
	var providerErr *ProviderError
	switch {
	case errors.Is(err, model.ErrMissingCredential):
		return "the assistant is not configured (missing API key)"
	case errors.Is(err, errTurnTimeout):
		return errTurnTimeout.Error()
	case errors.As(err, &providerErr):
		return providerErr.Error()
	default:
		return err.Error()
	}
}

// Reset brings the transcript back to the greeting and clears the message counter.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return model.ErrTurnInFlight
	}
	s.transcript = []model.Message{s.seed()}
	s.counter = 0
	s.revision++
	revision := s.revision
	s.lastActive = time.Now()
	s.mu.Unlock()

	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	s.savedRevs = revision

	var errs []error
	if s.Transcripts != nil {
		if err := s.Transcripts.DeleteTranscript(ctx, s.key); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Counters != nil {
		if err := s.Counters.SetCounter(ctx, s.key, 0); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to reset stored session %s: %w", s.key, err)
	}
	return nil
}

// ApplyMediaResult appends an assistant entry carrying a generated asset. While a reply is streaming the
// entry is placed right before it, so the streaming entry stays last.
func (s *Session) ApplyMediaResult(ctx context.Context, kind model.MediaKind, url, prompt string) (model.Message, error) {
	if url == "" {
		return model.Message{}, errors.New("media result has no url")
	}
	msg := model.NewMessage(model.RoleAssistant, mediaCaption(kind, prompt))
	msg.Attachment = &model.Attachment{Kind: kind, URL: url, Prompt: prompt}

	s.mu.Lock()
	last := len(s.transcript) - 1
	if last >= 0 && s.transcript[last].Streaming {
		pending := s.transcript[last]
		s.transcript = append(s.transcript[:last], msg, pending)
	} else {
		s.transcript = append(s.transcript, msg)
	}
	snapshot, revision := s.snapshotLocked()
	s.lastActive = time.Now()
	s.mu.Unlock()

	s.save(context.WithoutCancel(ctx), snapshot, revision)
	return msg, nil
}

func mediaCaption(kind model.MediaKind, prompt string) string {
	switch kind {
	case model.MediaKindImage:
		return fmt.Sprintf("Here is your image: %s", prompt)
	case model.MediaKindVideo:
		return fmt.Sprintf("Here is your video: %s", prompt)
	case model.MediaKindAudio:
		return fmt.Sprintf("Here is your track: %s", prompt)
	default:
		return prompt
	}
}

func (s *Session) Transcript() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMessages(s.transcript)
}

func (s *Session) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

func (s *Session) Usage() model.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usageLocked()
}

// SetLimit changes the free message limit, e.g. after the user upgraded. Zero means unlimited.
func (s *Session) SetLimit(limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Limit = limit
}

func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
}

func (s *Session) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive, s.inFlight
}

// Export renders the transcript as "[role]: content" blocks separated by blank lines.
func (s *Session) Export() string {
	messages := s.Transcript()
	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s]: %s", msg.Role, msg.Content)
		if msg.Attachment != nil {
			fmt.Fprintf(&b, "\n%s: %s", msg.Attachment.Kind, msg.Attachment.URL)
		}
	}
	return b.String()
}

func (s *Session) seed() model.Message {
	return model.NewMessage(model.RoleAssistant, s.opts.Greeting)
}

func (s *Session) usageLocked() model.Usage {
	return model.Usage{Used: s.counter, Limit: s.opts.Limit}
}

func (s *Session) indexLocked(id uuid.UUID) int {
	for i := len(s.transcript) - 1; i >= 0; i-- {
		if s.transcript[i].ID == id {
			return i
		}
	}
	return -1
}

// snapshotLocked returns the finished entries only; a streaming entry is never persisted.
func (s *Session) snapshotLocked() ([]model.Message, uint64) {
	s.revision++
	snapshot := make([]model.Message, 0, len(s.transcript))
	for _, msg := range s.transcript {
		if !msg.Streaming {
			snapshot = append(snapshot, msg)
		}
	}
	return cloneMessages(snapshot), s.revision
}

func (s *Session) save(ctx context.Context, snapshot []model.Message, revision uint64) {
	if s.Transcripts == nil {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if revision <= s.savedRevs {
		return
	}
	s.savedRevs = revision
	if err := s.Transcripts.SaveTranscript(ctx, s.key, snapshot); err != nil {
		logger.Warn("failed to save transcript", "session", s.key, "error", err)
	}
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
