package usecase

import (
	"context"
	"io"
	"strings"

	"github.com/iamvkosarev/epic-tech-ai/config"
	"github.com/iamvkosarev/epic-tech-ai/internal/model"
	"github.com/sashabaranov/go-openai"
)

// SpeechUsecase turns voice notes into text and replies into audio.
type SpeechUsecase struct {
	cfg    config.OpenAI
	client *openai.Client
}

// NewSpeechUsecase accepts a nil client; every call then fails with model.ErrMissingCredential.
func NewSpeechUsecase(cfg config.OpenAI, client *openai.Client) *SpeechUsecase {
	return &SpeechUsecase{
		cfg:    cfg,
		client: client,
	}
}

func (s *SpeechUsecase) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	if s.client == nil {
		return "", model.ErrMissingCredential
	}
	response, err := s.client.CreateTranscription(
		ctx, openai.AudioRequest{
			Model:    s.cfg.TranscriptionModel,
			FilePath: filename,
			Reader:   audio,
		},
	)
	if err != nil {
		return "", wrapProviderError(err)
	}
	return strings.TrimSpace(response.Text), nil
}

// Synthesize returns the encoded audio; the caller closes it.
func (s *SpeechUsecase) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	if s.client == nil {
		return nil, model.ErrMissingCredential
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, model.ErrEmptyInput
	}
	response, err := s.client.CreateSpeech(
		ctx, openai.CreateSpeechRequest{
			Model:          openai.SpeechModel(s.cfg.SpeechModel),
			Input:          text,
			Voice:          openai.SpeechVoice(s.cfg.SpeechVoice),
			ResponseFormat: openai.SpeechResponseFormatMp3,
		},
	)
	if err != nil {
		return nil, wrapProviderError(err)
	}
	return response, nil
}
