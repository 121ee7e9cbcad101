package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc/pool"

	"github.com/iamvkosarev/epic-tech-ai/config"
	"github.com/iamvkosarev/epic-tech-ai/internal/handler"
	"github.com/iamvkosarev/epic-tech-ai/internal/logger"
	"github.com/iamvkosarev/epic-tech-ai/internal/media"
	in_memory "github.com/iamvkosarev/epic-tech-ai/internal/storage/in-memory"
	key_value "github.com/iamvkosarev/epic-tech-ai/internal/storage/key-value"
	"github.com/iamvkosarev/epic-tech-ai/internal/storage/local"
	"github.com/iamvkosarev/epic-tech-ai/internal/usecase"
)

const (
	evictionInterval = time.Minute
	shutdownTimeout  = 10 * time.Second
	redisPingTimeout = 5 * time.Second
)

// App holds the wired usecases shared by every front end.
type App struct {
	cfg    *config.Config
	rdb    *redis.Client
	Chat   *usecase.ChatUsecase
	Media  *usecase.MediaUsecase
	Speech *usecase.SpeechUsecase
	User   *usecase.UserUsecase
	files  *http.Client
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	openAIUsecase, err := usecase.NewOpenAIUsecase(cfg.OpenAI)
	if err != nil {
		return nil, err
	}

	localStorage, err := newLocalStorage(cfg.Storage)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg}
	var remoteStorage usecase.StorageSet
	var userStorage usecase.UserStorage = in_memory.NewUserStorage()
	if cfg.Redis.Endpoint != "" {
		rdb := redis.NewClient(
			&redis.Options{
				Addr:     cfg.Redis.Endpoint,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			},
		)
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn("redis is unreachable, identified users fall back to local storage", "error", err)
			_ = rdb.Close()
		} else {
			a.rdb = rdb
			remoteStorage = usecase.StorageSet{
				Transcripts: key_value.NewTranscriptStorage(rdb),
				Counters:    key_value.NewCounterStorage(rdb),
			}
			userStorage = key_value.NewUserStorage(rdb)
		}
	}

	a.Chat = usecase.NewChatUsecase(
		usecase.ChatUsecaseDeps{
			Provider: openAIUsecase,
			Local:    localStorage,
			Remote:   remoteStorage,
		}, cfg.Session, cfg.OpenAI.RequestTimeout,
	)

	mediaClient := media.NewHTTPClient(cfg.Media)
	a.Media = usecase.NewMediaUsecase(
		usecase.MediaUsecaseDeps{
			Image: media.NewImageGenerator(mediaClient, cfg.Media),
			Video: media.NewVideoGenerator(mediaClient, cfg.Media),
			Music: media.NewMusicGenerator(mediaClient, cfg.Media),
		},
	)
	a.files = mediaClient.StandardClient()
	a.Speech = usecase.NewSpeechUsecase(cfg.OpenAI, openAIUsecase.Client())
	a.User = usecase.NewUserUsecase(usecase.UserUsecaseDeps{UserStorage: userStorage}, cfg.Telegram)
	return a, nil
}

func newLocalStorage(cfg config.Storage) (usecase.StorageSet, error) {
	switch cfg.Driver {
	case config.StorageDriverMemory:
		logger.Warn("sessions are kept in memory and are lost on restart")
		return usecase.StorageSet{
			Transcripts: in_memory.NewTranscriptStorage(),
			Counters:    in_memory.NewCounterStorage(),
		}, nil
	case config.StorageDriverFile, "":
		transcripts, err := local.NewTranscriptStorage(cfg.LocalDir)
		if err != nil {
			return usecase.StorageSet{}, fmt.Errorf("failed to open local storage: %w", err)
		}
		return usecase.StorageSet{
			Transcripts: transcripts,
			Counters:    local.NewCounterStorage(transcripts),
		}, nil
	default:
		return usecase.StorageSet{}, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Run serves HTTP, the Telegram bot (when a token is set) and session eviction until ctx is done
// or one of them fails.
func (a *App) Run(ctx context.Context) error {
	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(a.RunHTTP)
	if a.cfg.Telegram.TelegramAPIToken != "" {
		p.Go(a.RunTelegram)
	} else {
		logger.Info("telegram token is not set, bot is disabled")
	}
	p.Go(
		func(ctx context.Context) error {
			a.Chat.RunEviction(ctx, evictionInterval)
			return nil
		},
	)
	return p.Wait()
}

func (a *App) RunHTTP(ctx context.Context) error {
	server := &http.Server{
		Addr: a.cfg.HTTP.Addr,
		Handler: handler.NewRouter(
			handler.RouterDeps{
				Sessions: a.Chat,
				Media:    a.Media,
				Speech:   a.Speech,
			}, a.cfg.Session, a.cfg.HTTP,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", a.cfg.HTTP.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}

func (a *App) RunTelegram(ctx context.Context) error {
	bot, err := api.NewBotAPI(a.cfg.Telegram.TelegramAPIToken)
	if err != nil {
		return fmt.Errorf("failed to create new bot: %w", err)
	}
	logger.Info("authorized on telegram", "account", bot.Self.UserName)

	telegramUsecase, err := usecase.NewTelegramUsecase(
		a.cfg.Telegram, a.cfg.Session, usecase.TelegramUsecaseDeps{
			User:   a.User,
			Chat:   a.Chat,
			Media:  a.Media,
			Speech: a.Speech,
			Bot:    bot,
			Files:  a.files,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create telegram usecase: %w", err)
	}
	defer bot.StopReceivingUpdates()
	return telegramUsecase.Run(ctx)
}

func (a *App) Close() error {
	if a.rdb == nil {
		return nil
	}
	return a.rdb.Close()
}
