package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iamvkosarev/epic-tech-ai/config"
	"github.com/iamvkosarev/epic-tech-ai/internal/logger"
	"github.com/iamvkosarev/epic-tech-ai/internal/model"
	"github.com/iamvkosarev/epic-tech-ai/internal/usecase"
	"github.com/iamvkosarev/epic-tech-ai/pkg/utils"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserPlan = "X-User-Plan"

	planPremium = "premium"
)

type SessionOpener interface {
	Open(ctx context.Context, ref model.SessionRef) (*usecase.Session, error)
}

type MediaGenerator interface {
	Generate(ctx context.Context, session *usecase.Session, req model.MediaRequest) (model.Message, model.MediaResult, error)
}

// Handler serves the chat widget API.
type Handler struct {
	sessions      SessionOpener
	media         MediaGenerator
	cfg           config.Session
	trustIdentity bool
}

// New builds the chat handler. trustIdentity enables the X-User-ID and X-User-Plan headers; leave it off
// unless an auth proxy in front of the API sets them.
func New(sessions SessionOpener, media MediaGenerator, cfg config.Session, trustIdentity bool) *Handler {
	return &Handler{
		sessions:      sessions,
		media:         media,
		cfg:           cfg,
		trustIdentity: trustIdentity,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route(
		"/chat/{sessionKey}", func(r chi.Router) {
			r.Get("/", h.handleGetSession)
			r.Delete("/", h.handleReset)
			r.Post("/messages", h.handleSubmit)
			r.Get("/export", h.handleExport)
			r.Post("/media", h.handleMedia)
			r.Get("/ws", h.handleWebSocket)
		},
	)
}

type sessionResponse struct {
	Messages []model.Message `json:"messages"`
	Usage    model.Usage     `json:"usage"`
	InFlight bool            `json:"inFlight"`
}

func (h *Handler) sessionRef(r *http.Request) model.SessionRef {
	ref := model.SessionRef{Key: chi.URLParam(r, "sessionKey")}
	if h.trustIdentity {
		ref.UserID = r.Header.Get(HeaderUserID)
		ref.Unlimited = r.Header.Get(HeaderUserPlan) == planPremium
	}
	return ref
}

func (h *Handler) openSession(w http.ResponseWriter, r *http.Request) (*usecase.Session, bool) {
	session, err := h.sessions.Open(r.Context(), h.sessionRef(r))
	if err != nil {
		logger.Error("failed to open session", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to open session")
		return nil, false
	}
	return session, true
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.openSession(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, snapshot(session))
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	session, ok := h.openSession(w, r)
	if !ok {
		return
	}
	if err := session.Reset(r.Context()); err != nil {
		if errors.Is(err, model.ErrTurnInFlight) {
			utils.RespondError(w, http.StatusConflict, err.Error())
			return
		}
		logger.Error("failed to reset session", "session", session.Key(), "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to reset session")
		return
	}
	utils.RespondJSON(w, http.StatusOK, snapshot(session))
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	session, ok := h.openSession(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="conversation.txt"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(session.Export()))
}

// handleSubmit streams one turn as Server-Sent Events: start, progress per increment, message, end.
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	session, ok := h.openSession(w, r)
	if !ok {
		return
	}

	updates, err := session.Submit(r.Context(), payload.Text)
	if err != nil {
		h.respondRejection(w, session, err)
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	transcript := session.Transcript()
	utils.SendSSEEvent(w, flusher, "start", map[string]any{"messages": transcript[len(transcript)-2:]})
	for update := range updates {
		if update.Done {
			utils.SendSSEEvent(w, flusher, "message", update.Message)
			continue
		}
		utils.SendSSEEvent(w, flusher, "progress", update.Message)
	}
	utils.SendSSEEvent(w, flusher, "end", map[string]any{"usage": session.Usage()})
}

func (h *Handler) respondRejection(w http.ResponseWriter, session *usecase.Session, err error) {
	status, body := rejection(h.cfg, session, err)
	if status == http.StatusInternalServerError {
		logger.Error("failed to submit message", "session", session.Key(), "error", err)
	}
	utils.RespondJSON(w, status, body)
}

func rejection(cfg config.Session, session *usecase.Session, err error) (int, map[string]any) {
	body := map[string]any{"error": err.Error()}
	switch {
	case errors.Is(err, model.ErrEmptyInput):
		return http.StatusBadRequest, body
	case errors.Is(err, model.ErrTurnInFlight):
		return http.StatusConflict, body
	case errors.Is(err, model.ErrMessageLimitReached):
		body["usage"] = session.Usage()
		body["upgradeUrl"] = cfg.UpgradeURL
		return http.StatusPaymentRequired, body
	default:
		return http.StatusInternalServerError, map[string]any{"error": "failed to submit message"}
	}
}

func (h *Handler) handleMedia(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Kind     string `json:"kind"`
		Prompt   string `json:"prompt"`
		Genre    string `json:"genre"`
		Mood     string `json:"mood"`
		Duration int    `json:"duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	kind, err := model.ParseMediaKind(payload.Kind)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, ok := h.openSession(w, r)
	if !ok {
		return
	}

	msg, result, err := h.media.Generate(
		r.Context(), session, model.MediaRequest{
			Kind:     kind,
			Prompt:   payload.Prompt,
			Genre:    payload.Genre,
			Mood:     payload.Mood,
			Duration: payload.Duration,
		},
	)
	switch {
	case errors.Is(err, model.ErrEmptyPrompt), errors.Is(err, model.ErrUnknownMediaKind):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, model.ErrMediaBusy):
		utils.RespondError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		logger.Error("media generation failed", "session", session.Key(), "kind", kind, "error", err)
		utils.RespondError(w, http.StatusBadGateway, "media generation failed")
		return
	}
	utils.RespondJSON(w, http.StatusCreated, map[string]any{"message": msg, "isDemo": result.IsDemo})
}

func snapshot(session *usecase.Session) sessionResponse {
	return sessionResponse{
		Messages: session.Transcript(),
		Usage:    session.Usage(),
		InFlight: session.InFlight(),
	}
}
