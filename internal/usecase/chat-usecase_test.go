package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamvkosarev/epic-tech-ai/config"
	"github.com/iamvkosarev/epic-tech-ai/internal/model"
	in_memory "github.com/iamvkosarev/epic-tech-ai/internal/storage/in-memory"
)

func newTestChatUsecase(provider CompletionProvider) (*ChatUsecase, StorageSet, StorageSet) {
	local := StorageSet{Transcripts: in_memory.NewTranscriptStorage(), Counters: in_memory.NewCounterStorage()}
	remote := StorageSet{Transcripts: in_memory.NewTranscriptStorage(), Counters: in_memory.NewCounterStorage()}
	chat := NewChatUsecase(
		ChatUsecaseDeps{Provider: provider, Local: local, Remote: remote},
		config.Session{
			Greeting:         "Welcome",
			FallbackReply:    "fallback",
			ErrorPrefix:      "Error: ",
			FreeMessageLimit: 3,
			IdleTimeout:      time.Minute,
		},
		time.Second,
	)
	return chat, local, remote
}

func TestChatUsecaseOpenReturnsSameSession(t *testing.T) {
	chat, _, _ := newTestChatUsecase(&scriptedProvider{})
	ctx := context.Background()

	first, err := chat.Open(ctx, model.SessionRef{Key: "abc"})
	require.NoError(t, err)
	second, err := chat.Open(ctx, model.SessionRef{Key: "abc"})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, model.Usage{Used: 0, Limit: 3}, first.Usage())
}

func TestChatUsecaseRoutesIdentifiedUsersToRemoteStorage(t *testing.T) {
	chat, local, remote := newTestChatUsecase(&scriptedProvider{deltas: []string{"hey"}})
	ctx := context.Background()

	session, err := chat.Open(ctx, model.SessionRef{Key: "abc", UserID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, "user:u-1", session.Key())

	updates, err := session.Submit(ctx, "hello")
	require.NoError(t, err)
	drain(t, updates)

	stored, err := remote.Transcripts.LoadTranscript(ctx, "user:u-1")
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	_, err = local.Transcripts.LoadTranscript(ctx, "user:u-1")
	assert.ErrorIs(t, err, model.ErrTranscriptDoesNotExist)
}

func TestChatUsecaseUnlimitedRef(t *testing.T) {
	chat, _, _ := newTestChatUsecase(&scriptedProvider{})
	ctx := context.Background()

	session, err := chat.Open(ctx, model.SessionRef{Key: "abc"})
	require.NoError(t, err)
	assert.Equal(t, 3, session.Usage().Limit)

	session, err = chat.Open(ctx, model.SessionRef{Key: "abc", Unlimited: true})
	require.NoError(t, err)
	assert.Zero(t, session.Usage().Limit)
}

func TestChatUsecaseEvictIdle(t *testing.T) {
	chat, _, _ := newTestChatUsecase(&scriptedProvider{})
	ctx := context.Background()

	first, err := chat.Open(ctx, model.SessionRef{Key: "abc"})
	require.NoError(t, err)

	assert.Zero(t, chat.EvictIdle(time.Now(), time.Hour))
	assert.Equal(t, 1, chat.EvictIdle(time.Now().Add(2*time.Hour), time.Hour))

	second, err := chat.Open(ctx, model.SessionRef{Key: "abc"})
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestChatUsecaseRejectsEmptyKey(t *testing.T) {
	chat, _, _ := newTestChatUsecase(&scriptedProvider{})

	_, err := chat.Open(context.Background(), model.SessionRef{})
	assert.Error(t, err)
}

type gatedTranscripts struct {
	TranscriptStorage
	key     string
	entered chan struct{}
	release chan struct{}
}

func (g *gatedTranscripts) LoadTranscript(ctx context.Context, key string) ([]model.Message, error) {
	if key == g.key {
		close(g.entered)
		<-g.release
	}
	return g.TranscriptStorage.LoadTranscript(ctx, key)
}

func TestChatUsecaseSlowLoadDoesNotBlockOtherKeys(t *testing.T) {
	gated := &gatedTranscripts{
		TranscriptStorage: in_memory.NewTranscriptStorage(),
		key:               "slow",
		entered:           make(chan struct{}),
		release:           make(chan struct{}),
	}
	chat := NewChatUsecase(
		ChatUsecaseDeps{
			Provider: &scriptedProvider{},
			Local:    StorageSet{Transcripts: gated, Counters: in_memory.NewCounterStorage()},
		},
		config.Session{Greeting: "Welcome"},
		time.Second,
	)
	ctx := context.Background()

	slowDone := make(chan error, 1)
	go func() {
		_, err := chat.Open(ctx, model.SessionRef{Key: "slow"})
		slowDone <- err
	}()
	<-gated.entered

	fastDone := make(chan error, 1)
	go func() {
		_, err := chat.Open(ctx, model.SessionRef{Key: "fast"})
		fastDone <- err
	}()
	select {
	case err := <-fastDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("open of another key waited for the slow load")
	}

	close(gated.release)
	require.NoError(t, <-slowDone)
}

func TestChatUsecaseOpenKeepsSessionActive(t *testing.T) {
	chat, _, _ := newTestChatUsecase(&scriptedProvider{})
	ctx := context.Background()

	first, err := chat.Open(ctx, model.SessionRef{Key: "abc"})
	require.NoError(t, err)
	opened := time.Now()

	time.Sleep(20 * time.Millisecond)
	_, err = chat.Open(ctx, model.SessionRef{Key: "abc"})
	require.NoError(t, err)

	assert.Zero(t, chat.EvictIdle(opened.Add(time.Minute+10*time.Millisecond), time.Minute))
	second, err := chat.Open(ctx, model.SessionRef{Key: "abc"})
	require.NoError(t, err)
	assert.Same(t, first, second)
}
