package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamvkosarev/epic-tech-ai/config"
	"github.com/iamvkosarev/epic-tech-ai/internal/model"
	in_memory "github.com/iamvkosarev/epic-tech-ai/internal/storage/in-memory"
	"github.com/iamvkosarev/epic-tech-ai/internal/usecase"
)

type streamingProvider struct {
	deltas []string
}

func (p streamingProvider) Complete(ctx context.Context, _ model.CompletionRequest, deltas chan<- string) error {
	for _, delta := range p.deltas {
		select {
		case deltas <- delta:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

type staticGenerator struct {
	result model.MediaResult
	err    error
}

func (g staticGenerator) Generate(context.Context, model.MediaRequest) (model.MediaResult, error) {
	return g.result, g.err
}

func testSessionConfig() config.Session {
	return config.Session{
		Greeting:         "Welcome!",
		FallbackReply:    "fallback",
		ErrorPrefix:      "Error: ",
		FreeMessageLimit: 2,
		UpgradeURL:       "https://pay.example/upgrade",
	}
}

func newTestSessions(provider usecase.CompletionProvider) *usecase.ChatUsecase {
	return usecase.NewChatUsecase(
		usecase.ChatUsecaseDeps{
			Provider: provider,
			Local: usecase.StorageSet{
				Transcripts: in_memory.NewTranscriptStorage(),
				Counters:    in_memory.NewCounterStorage(),
			},
		}, testSessionConfig(), time.Second,
	)
}

func newRouter(sessions *usecase.ChatUsecase, media usecase.MediaUsecaseDeps, trustIdentity bool) *chi.Mux {
	handler := New(sessions, usecase.NewMediaUsecase(media), testSessionConfig(), trustIdentity)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r
}

func setupRouter(provider usecase.CompletionProvider, media usecase.MediaUsecaseDeps) *chi.Mux {
	return newRouter(newTestSessions(provider), media, true)
}

type sseEvent struct {
	name string
	data string
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	var current sseEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
		case line == "" && current.name != "":
			events = append(events, current)
			current = sseEvent{}
		}
	}
	require.NoError(t, scanner.Err())
	return events
}

func postMessage(r http.Handler, sessionKey, text string) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(map[string]string{"text": text})
	req := httptest.NewRequest(http.MethodPost, "/chat/"+sessionKey+"/messages", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestSubmitStreamsEvents(t *testing.T) {
	r := setupRouter(streamingProvider{deltas: []string{"Hel", "lo"}}, usecase.MediaUsecaseDeps{})

	resp := postMessage(r, "abc", "Hi")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "text/event-stream", resp.Header().Get("Content-Type"))

	events := parseSSE(t, resp.Body.String())
	var names []string
	for _, event := range events {
		names = append(names, event.name)
	}
	assert.Equal(t, []string{"start", "progress", "progress", "message", "end"}, names)

	var final model.Message
	require.NoError(t, json.Unmarshal([]byte(events[3].data), &final))
	assert.Equal(t, "Hello", final.Content)
	assert.False(t, final.Streaming)
	assert.Contains(t, events[4].data, `"used":1`)
}

func TestSubmitRejections(t *testing.T) {
	r := setupRouter(streamingProvider{deltas: []string{"ok"}}, usecase.MediaUsecaseDeps{})

	resp := postMessage(r, "abc", "   ")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	require.Equal(t, http.StatusOK, postMessage(r, "abc", "one").Code)
	require.Equal(t, http.StatusOK, postMessage(r, "abc", "two").Code)

	resp = postMessage(r, "abc", "three")
	require.Equal(t, http.StatusPaymentRequired, resp.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "https://pay.example/upgrade", body["upgradeUrl"])
}

func postAsPremium(r http.Handler) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/chat/abc/messages", bytes.NewReader([]byte(`{"text":"hi"}`)))
	req.Header.Set(HeaderUserID, "u-1")
	req.Header.Set(HeaderUserPlan, "premium")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestPremiumPlanIsUnlimited(t *testing.T) {
	r := setupRouter(streamingProvider{deltas: []string{"ok"}}, usecase.MediaUsecaseDeps{})

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, postAsPremium(r).Code)
	}
}

func TestIdentityHeadersIgnoredUnlessTrusted(t *testing.T) {
	sessions := newTestSessions(streamingProvider{deltas: []string{"ok"}})
	r := newRouter(sessions, usecase.MediaUsecaseDeps{}, false)

	require.Equal(t, http.StatusOK, postAsPremium(r).Code)
	require.Equal(t, http.StatusOK, postAsPremium(r).Code)
	assert.Equal(t, http.StatusPaymentRequired, postAsPremium(r).Code)

	session, err := sessions.Open(context.Background(), model.SessionRef{Key: "abc"})
	require.NoError(t, err)
	assert.Equal(t, model.Usage{Used: 2, Limit: 2}, session.Usage())
}

func TestGetResetAndExport(t *testing.T) {
	r := setupRouter(streamingProvider{deltas: []string{"Hello"}}, usecase.MediaUsecaseDeps{})
	require.Equal(t, http.StatusOK, postMessage(r, "abc", "Hi").Code)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/chat/abc/", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	var session sessionResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &session))
	assert.Len(t, session.Messages, 3)
	assert.Equal(t, 1, session.Usage.Used)
	assert.False(t, session.InFlight)

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/chat/abc/export", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "[assistant]: Welcome!\n\n[user]: Hi\n\n[assistant]: Hello", resp.Body.String())

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/chat/abc/", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &session))
	assert.Len(t, session.Messages, 1)
	assert.Zero(t, session.Usage.Used)
}

func TestMediaEndpoint(t *testing.T) {
	r := setupRouter(
		streamingProvider{}, usecase.MediaUsecaseDeps{
			Image: staticGenerator{result: model.MediaResult{URL: "https://img.example/fox.png"}},
			Music: staticGenerator{result: model.MediaResult{URL: "https://demo.example/t.mp3", IsDemo: true}},
			Video: staticGenerator{err: assert.AnError},
		},
	)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "image", body: `{"kind":"image","prompt":"a fox"}`, status: http.StatusCreated},
		{name: "music is audio", body: `{"kind":"music","prompt":"beat"}`, status: http.StatusCreated},
		{name: "unknown kind", body: `{"kind":"gif","prompt":"x"}`, status: http.StatusBadRequest},
		{name: "empty prompt", body: `{"kind":"image","prompt":" "}`, status: http.StatusBadRequest},
		{name: "provider failure", body: `{"kind":"video","prompt":"waves"}`, status: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				req := httptest.NewRequest(http.MethodPost, "/chat/abc/media", strings.NewReader(tt.body))
				resp := httptest.NewRecorder()
				r.ServeHTTP(resp, req)
				assert.Equal(t, tt.status, resp.Code)
			},
		)
	}

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/chat/abc/", nil))
	var session sessionResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &session))
	require.Len(t, session.Messages, 3)
	require.NotNil(t, session.Messages[1].Attachment)
	assert.Equal(t, model.MediaKindImage, session.Messages[1].Attachment.Kind)
	assert.Equal(t, model.MediaKindAudio, session.Messages[2].Attachment.Kind)
}
