package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamvkosarev/epic-tech-ai/config"
	"github.com/iamvkosarev/epic-tech-ai/internal/model"
)

type capturedRequest struct {
	Model    string `json:"model"`
	Stream   bool   `json:"stream"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newCompletionServer(t *testing.T, handler func(w http.ResponseWriter, req capturedRequest)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/chat/completions", r.URL.Path)
				assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
				body, err := io.ReadAll(r.Body)
				require.NoError(t, err)
				var req capturedRequest
				require.NoError(t, json.Unmarshal(body, &req))
				handler(w, req)
			},
		),
	)
	t.Cleanup(server.Close)
	return server
}

func newTestOpenAI(t *testing.T, baseURL string, stream bool) *OpenAIUsecase {
	t.Helper()
	o, err := NewOpenAIUsecase(
		config.OpenAI{
			OpenAIAPIKey:  "test-key",
			OpenAIBaseURL: baseURL,
			OpenAIModel:   "test-model",
			Stream:        stream,
		},
	)
	require.NoError(t, err)
	return o
}

func collect(t *testing.T, provider CompletionProvider, req model.CompletionRequest) ([]string, error) {
	t.Helper()
	deltas := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		defer close(deltas)
		errCh <- provider.Complete(context.Background(), req, deltas)
	}()
	var got []string
	for delta := range deltas {
		got = append(got, delta)
	}
	return got, <-errCh
}

func testCompletionRequest() model.CompletionRequest {
	return model.CompletionRequest{
		SystemPrompt: "be brief",
		History: []model.Message{
			model.NewMessage(model.RoleAssistant, "Welcome"),
			model.NewMessage(model.RoleUser, "earlier question"),
		},
		UserText: "Hi",
	}
}

func TestOpenAIUsecaseStreamsDeltas(t *testing.T) {
	var captured capturedRequest
	server := newCompletionServer(
		t, func(w http.ResponseWriter, req capturedRequest) {
			captured = req
			w.Header().Set("Content-Type", "text/event-stream")
			for _, chunk := range []string{"Hel", "lo, ", "world"} {
				_, _ = fmt.Fprintf(
					w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"model\":\"test-model\","+
						"\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", chunk,
				)
			}
			_, _ = fmt.Fprint(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[]}\n\n")
			_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
		},
	)

	got, err := collect(t, newTestOpenAI(t, server.URL, true), testCompletionRequest())
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo, ", "world"}, got)

	assert.True(t, captured.Stream)
	assert.Equal(t, "test-model", captured.Model)
	require.Len(t, captured.Messages, 4)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "be brief", captured.Messages[0].Content)
	assert.Equal(t, "assistant", captured.Messages[1].Role)
	assert.Equal(t, "user", captured.Messages[2].Role)
	assert.Equal(t, "user", captured.Messages[3].Role)
	assert.Equal(t, "Hi", captured.Messages[3].Content)
}

func TestOpenAIUsecaseBatchMode(t *testing.T) {
	server := newCompletionServer(
		t, func(w http.ResponseWriter, req capturedRequest) {
			assert.False(t, req.Stream)
			w.Header().Set("Content-Type", "application/json")
			_, _ = fmt.Fprint(
				w, `{"id":"1","object":"chat.completion","model":"test-model",`+
					`"choices":[{"index":0,"message":{"role":"assistant","content":"Hello, world"},"finish_reason":"stop"}]}`,
			)
		},
	)

	got, err := collect(t, newTestOpenAI(t, server.URL, false), testCompletionRequest())
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello, world"}, got)
}

func TestOpenAIUsecaseReportsProviderError(t *testing.T) {
	server := newCompletionServer(
		t, func(w http.ResponseWriter, _ capturedRequest) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = fmt.Fprint(w, `{"error":{"message":"boom","type":"server_error"}}`)
		},
	)

	_, err := collect(t, newTestOpenAI(t, server.URL, true), testCompletionRequest())
	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, http.StatusInternalServerError, providerErr.StatusCode)
	assert.Equal(t, "provider returned status 500: boom", providerErr.Error())
}

func TestOpenAIUsecaseWithoutCredential(t *testing.T) {
	o, err := NewOpenAIUsecase(config.OpenAI{OpenAIBaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	assert.Nil(t, o.Client())

	_, err = collect(t, o, testCompletionRequest())
	assert.ErrorIs(t, err, model.ErrMissingCredential)
}

func TestOpenAIUsecaseEndToEndWithSession(t *testing.T) {
	server := newCompletionServer(
		t, func(w http.ResponseWriter, _ capturedRequest) {
			w.Header().Set("Content-Type", "text/event-stream")
			for _, chunk := range []string{"Hel", "lo"} {
				_, _ = fmt.Fprintf(
					w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", chunk,
				)
			}
			_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
		},
	)
	s := newSessionFixture().session(newTestOpenAI(t, server.URL, true))

	updates, err := s.Submit(context.Background(), "Hi")
	require.NoError(t, err)
	got := drain(t, updates)

	require.Len(t, got, 3)
	assert.Equal(t, "Hel", got[0].Message.Content)
	assert.Equal(t, "Hello", got[2].Message.Content)
	assert.True(t, got[2].Done)
}

func TestParseRole(t *testing.T) {
	role, err := parseRole(model.RoleAssistant)
	require.NoError(t, err)
	assert.Equal(t, "assistant", role)

	_, err = parseRole(model.Role(9))
	assert.ErrorIs(t, err, model.ErrUnknownRole)
}
