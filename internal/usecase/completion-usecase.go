package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/iamvkosarev/epic-tech-ai/config"
	"github.com/iamvkosarev/epic-tech-ai/internal/logger"
	"github.com/iamvkosarev/epic-tech-ai/internal/model"
	openai_tools "github.com/iamvkosarev/epic-tech-ai/pkg/openai-tools"
	"github.com/sashabaranov/go-openai"
)

// ProviderError is a failure reported by the completion endpoint itself.
type ProviderError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// OpenAIUsecase talks to any OpenAI-compatible chat completion endpoint.
type OpenAIUsecase struct {
	cfg    config.OpenAI
	client *openai.Client
}

func NewOpenAIUsecase(cfg config.OpenAI) (*OpenAIUsecase, error) {
	if cfg.OpenAIAPIKey == "" {
		logger.Warn("openai api key is not set, completions will fail")
		return &OpenAIUsecase{cfg: cfg}, nil
	}
	clientConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	baseURL, err := url.JoinPath(cfg.OpenAIBaseURL, "/v1")
	if err != nil {
		return nil, fmt.Errorf("failed to build openai base url: %w", err)
	}
	clientConfig.BaseURL = baseURL
	return &OpenAIUsecase{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientConfig),
	}, nil
}

// Client is nil when no credential is configured.
func (o *OpenAIUsecase) Client() *openai.Client {
	return o.client
}

func (o *OpenAIUsecase) Complete(ctx context.Context, req model.CompletionRequest, deltas chan<- string) error {
	if o.client == nil {
		return model.ErrMissingCredential
	}
	messages, err := o.buildMessages(req)
	if err != nil {
		return err
	}

	request := openai.ChatCompletionRequest{
		Model:       o.cfg.OpenAIModel,
		Temperature: o.cfg.ModelTemperature,
		MaxTokens:   o.cfg.MaxTokens,
		TopP:        1,
		N:           1,
		Messages:    messages,
		Stream:      o.cfg.Stream,
	}
	if !o.cfg.Stream {
		return o.completeOnce(ctx, request, deltas)
	}

	stream, err := o.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		return wrapProviderError(err)
	}
	defer stream.Close()
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return wrapProviderError(err)
		}
		if len(response.Choices) == 0 {
			continue
		}
		if err := sendDelta(ctx, deltas, response.Choices[0].Delta.Content); err != nil {
			return err
		}
	}
}

func (o *OpenAIUsecase) completeOnce(ctx context.Context, request openai.ChatCompletionRequest, deltas chan<- string) error {
	response, err := o.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return wrapProviderError(err)
	}
	if len(response.Choices) == 0 {
		return nil
	}
	return sendDelta(ctx, deltas, response.Choices[0].Message.Content)
}

func sendDelta(ctx context.Context, deltas chan<- string, content string) error {
	if content == "" {
		return nil
	}
	select {
	case deltas <- content:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *OpenAIUsecase) buildMessages(req model.CompletionRequest) ([]openai.ChatCompletionMessage, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(
			messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: req.SystemPrompt,
			},
		)
	}
	for _, message := range req.History {
		if message.Streaming {
			continue
		}
		role, err := parseRole(message.Role)
		if err != nil {
			return nil, err
		}
		messages = append(
			messages, openai.ChatCompletionMessage{
				Role:    role,
				Content: message.Content,
			},
		)
	}
	messages = append(
		messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserText,
		},
	)

	if o.cfg.MaxContextTokens <= 0 {
		return messages, nil
	}
	trimmed, dropped, err := openai_tools.TrimToLimit(messages, o.cfg.OpenAIModel, o.cfg.MaxContextTokens)
	if err != nil {
		logger.Warn("failed to count tokens, sending full history", "error", err)
		return messages, nil
	}
	if dropped {
		logger.Debug("history trimmed due to token limit", "kept", len(trimmed), "total", len(messages))
	}
	return trimmed, nil
}

func parseRole(role model.Role) (string, error) {
	switch role {
	case model.RoleUser:
		return openai.ChatMessageRoleUser, nil
	case model.RoleAssistant:
		return openai.ChatMessageRoleAssistant, nil
	default:
		return "", fmt.Errorf("%w: %d", model.ErrUnknownRole, role)
	}
}

func wrapProviderError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		message := ""
		if reqErr.Err != nil {
			message = reqErr.Err.Error()
		}
		return &ProviderError{StatusCode: reqErr.HTTPStatusCode, Message: message, Err: err}
	}
	return fmt.Errorf("completion request failed: %w", err)
}
