package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamvkosarev/epic-tech-ai/internal/model"
)

type fakeGenerator struct {
	result model.MediaResult
	err    error
	gate   chan struct{}
	got    chan model.MediaRequest
}

func (g *fakeGenerator) Generate(ctx context.Context, req model.MediaRequest) (model.MediaResult, error) {
	if g.got != nil {
		g.got <- req
	}
	if g.gate != nil {
		<-g.gate
	}
	return g.result, g.err
}

func TestMediaUsecaseAppendsResultToSession(t *testing.T) {
	image := &fakeGenerator{result: model.MediaResult{URL: "https://img.example/cat.png"}}
	media := NewMediaUsecase(MediaUsecaseDeps{Image: image})
	session := newSessionFixture().session(&scriptedProvider{})

	msg, result, err := media.Generate(
		context.Background(), session, model.MediaRequest{Kind: model.MediaKindImage, Prompt: "  a cat "},
	)
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/cat.png", result.URL)
	require.NotNil(t, msg.Attachment)
	assert.Equal(t, "a cat", msg.Attachment.Prompt)

	transcript := session.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, msg.ID, transcript[1].ID)
}

func TestMediaUsecaseRejectsInvalidRequests(t *testing.T) {
	media := NewMediaUsecase(MediaUsecaseDeps{Image: &fakeGenerator{}})
	session := newSessionFixture().session(&scriptedProvider{})

	_, _, err := media.Generate(context.Background(), session, model.MediaRequest{Kind: model.MediaKindImage, Prompt: " "})
	assert.ErrorIs(t, err, model.ErrEmptyPrompt)

	_, _, err = media.Generate(context.Background(), session, model.MediaRequest{Kind: "gif", Prompt: "x"})
	assert.ErrorIs(t, err, model.ErrUnknownMediaKind)

	_, _, err = media.Generate(context.Background(), session, model.MediaRequest{Kind: model.MediaKindVideo, Prompt: "x"})
	assert.Error(t, err)
	assert.Len(t, session.Transcript(), 1)
}

func TestMediaUsecaseFailureLeavesTranscriptUntouched(t *testing.T) {
	media := NewMediaUsecase(MediaUsecaseDeps{Video: &fakeGenerator{err: errors.New("gpu on fire")}})
	session := newSessionFixture().session(&scriptedProvider{})

	_, _, err := media.Generate(context.Background(), session, model.MediaRequest{Kind: model.MediaKindVideo, Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gpu on fire")
	assert.Len(t, session.Transcript(), 1)
}

func TestMediaUsecaseSingleFlightPerKind(t *testing.T) {
	music := &fakeGenerator{
		result: model.MediaResult{URL: "https://demo.example/t.mp3", IsDemo: true},
		gate:   make(chan struct{}),
		got:    make(chan model.MediaRequest, 1),
	}
	media := NewMediaUsecase(MediaUsecaseDeps{Music: music, Image: &fakeGenerator{result: model.MediaResult{URL: "u"}}})
	session := newSessionFixture().session(&scriptedProvider{})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, _, err := media.Generate(ctx, session, model.MediaRequest{Kind: model.MediaKindAudio, Prompt: "beat", Duration: 90})
		done <- err
	}()

	var got model.MediaRequest
	select {
	case got = <-music.got:
	case <-time.After(time.Second):
		t.Fatal("music generation did not start")
	}
	assert.Equal(t, "electronic", got.Genre)
	assert.Equal(t, "energetic", got.Mood)
	assert.Equal(t, 60, got.Duration)

	_, _, err := media.Generate(ctx, session, model.MediaRequest{Kind: model.MediaKindAudio, Prompt: "beat"})
	assert.ErrorIs(t, err, model.ErrMediaBusy)

	_, _, err = media.Generate(ctx, session, model.MediaRequest{Kind: model.MediaKindImage, Prompt: "cat"})
	assert.NoError(t, err)

	close(music.gate)
	require.NoError(t, <-done)
	assert.Len(t, session.Transcript(), 3)
}

func TestNormalizeMediaRequestClampsDuration(t *testing.T) {
	req, err := normalizeMediaRequest(model.MediaRequest{Kind: model.MediaKindAudio, Prompt: "x", Duration: 5})
	require.NoError(t, err)
	assert.Equal(t, 15, req.Duration)

	req, err = normalizeMediaRequest(model.MediaRequest{Kind: model.MediaKindAudio, Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, 30, req.Duration)
}
