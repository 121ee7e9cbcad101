package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iamvkosarev/epic-tech-ai/config"
	"github.com/iamvkosarev/epic-tech-ai/internal/handler/chat"
	"github.com/iamvkosarev/epic-tech-ai/internal/handler/speech"
	"github.com/iamvkosarev/epic-tech-ai/internal/logger"
	"github.com/iamvkosarev/epic-tech-ai/pkg/utils"
)

type RouterDeps struct {
	Sessions chat.SessionOpener
	Media    chat.MediaGenerator
	Speech   speech.SpeechService
}

// NewRouter wires HTTP routes to the usecases.
func NewRouter(deps RouterDeps, sessionCfg config.Session, httpCfg config.HTTP) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Route(
		"/api", func(api chi.Router) {
			api.Get(
				"/health", func(w http.ResponseWriter, r *http.Request) {
					utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
				},
			)
			chat.New(deps.Sessions, deps.Media, sessionCfg, httpCfg.TrustIdentityHeaders).RegisterRoutes(api)
			if deps.Speech != nil {
				speech.New(deps.Speech).RegisterRoutes(api)
			}
		},
	)
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info(
				"http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		},
	)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+chat.HeaderUserID+", "+chat.HeaderUserPlan)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		},
	)
}
