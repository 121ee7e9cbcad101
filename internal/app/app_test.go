package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamvkosarev/epic-tech-ai/config"
	"github.com/iamvkosarev/epic-tech-ai/internal/model"
	in_memory "github.com/iamvkosarev/epic-tech-ai/internal/storage/in-memory"
	"github.com/iamvkosarev/epic-tech-ai/internal/storage/local"
)

func TestNewLocalStorage(t *testing.T) {
	memory, err := newLocalStorage(config.Storage{Driver: config.StorageDriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &in_memory.TranscriptStorage{}, memory.Transcripts)
	assert.IsType(t, &in_memory.CounterStorage{}, memory.Counters)

	dir := filepath.Join(t.TempDir(), "sessions")
	file, err := newLocalStorage(config.Storage{Driver: config.StorageDriverFile, LocalDir: dir})
	require.NoError(t, err)
	assert.IsType(t, &local.TranscriptStorage{}, file.Transcripts)
	_, err = os.Stat(dir)
	assert.NoError(t, err)

	_, err = newLocalStorage(config.Storage{Driver: "tape"})
	assert.Error(t, err)
}

func TestNewWithMemoryStorage(t *testing.T) {
	cfg := &config.Config{
		Session: config.Session{Greeting: "Welcome", FreeMessageLimit: 1},
		Storage: config.Storage{Driver: config.StorageDriverMemory},
	}
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	session, err := a.Chat.Open(context.Background(), model.SessionRef{Key: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "Welcome", session.Transcript()[0].Content)
	assert.Equal(t, model.Usage{Used: 0, Limit: 1}, session.Usage())
}
