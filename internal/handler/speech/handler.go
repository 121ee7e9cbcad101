package speech

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iamvkosarev/epic-tech-ai/internal/logger"
	"github.com/iamvkosarev/epic-tech-ai/internal/model"
	"github.com/iamvkosarev/epic-tech-ai/pkg/utils"
)

const maxUploadSize = 25 << 20

type SpeechService interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
	Synthesize(ctx context.Context, text string) (io.ReadCloser, error)
}

type Handler struct {
	speechSvc SpeechService
}

func New(speechSvc SpeechService) *Handler {
	return &Handler{speechSvc: speechSvc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/speech/transcribe", h.handleTranscribe)
	r.Post("/speech/synthesize", h.handleSynthesize)
}

// handleTranscribe expects a multipart form with the recording in the "file" field.
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	text, err := h.speechSvc.Transcribe(r.Context(), header.Filename, file)
	if err != nil {
		respondSpeechError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	audio, err := h.speechSvc.Synthesize(r.Context(), payload.Text)
	if err != nil {
		respondSpeechError(w, err)
		return
	}
	defer audio.Close()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, audio); err != nil {
		logger.Debug("failed to stream synthesized audio", "error", err)
	}
}

func respondSpeechError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrEmptyInput):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrMissingCredential):
		utils.RespondError(w, http.StatusServiceUnavailable, "speech is not configured")
	default:
		logger.Error("speech request failed", "error", err)
		utils.RespondError(w, http.StatusBadGateway, "speech request failed")
	}
}
