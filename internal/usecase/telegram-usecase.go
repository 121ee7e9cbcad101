package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamvkosarev/epic-tech-ai/config"
	"github.com/iamvkosarev/epic-tech-ai/internal/logger"
	"github.com/iamvkosarev/epic-tech-ai/internal/model"
	"github.com/iamvkosarev/epic-tech-ai/pkg/local"
	"github.com/sourcegraph/conc"
)

var (
	MessageServerError = local.NewSet(
		"Something wrong with me. Try later",
		local.NewTrans(local.Rus, "Что-то пошло не так. Попробуйте позже"),
	)
	MessageUserNoAccess = local.NewSet(
		"You are not allowed to use this bot",
		local.NewTrans(local.Rus, "У вас нет доступа к этому боту"),
	)
	MessageCommandHelp = local.NewSet(
		"Write something to start a conversation.\n/new - start over\n/export - download the transcript\n"+
			"/usage - free messages left\n/image, /video, /music <prompt> - generate media",
		local.NewTrans(
			local.Rus, "Напишите что-нибудь, чтобы начать диалог.\n/new - начать заново\n/export - скачать переписку\n"+
				"/usage - остаток бесплатных сообщений\n/image, /video, /music <описание> - сгенерировать медиа",
		),
	)
	MessageCommandUnknown = local.NewSet(
		"I don't know that command",
		local.NewTrans(local.Rus, "Я не знаю такой команды"),
	)
	MessageConversationReset = local.NewSet(
		"Started a new conversation",
		local.NewTrans(local.Rus, "Начат новый диалог"),
	)
	MessageTurnInFlight = local.NewSet(
		"Wait for the current answer to finish",
		local.NewTrans(local.Rus, "Дождитесь окончания текущего ответа"),
	)
	MessageLimitReachedFormat = local.NewSet(
		"You have used all %d free messages. Upgrade to keep chatting: %s",
		local.NewTrans(local.Rus, "Вы использовали все %d бесплатных сообщений. Оформите подписку: %s"),
	)
	MessageUsageFormat = local.NewSet(
		"Messages used: %d of %d",
		local.NewTrans(local.Rus, "Использовано сообщений: %d из %d"),
	)
	MessageUsageUnlimited = local.NewSet(
		"You have unlimited messages",
		local.NewTrans(local.Rus, "У вас безлимитные сообщения"),
	)
	MessageMediaPromptRequired = local.NewSet(
		"Add a description after the command, e.g. /image a red fox",
		local.NewTrans(local.Rus, "Добавьте описание после команды, например /image рыжая лиса"),
	)
	MessageMediaBusy = local.NewSet(
		"This kind of media is already being generated",
		local.NewTrans(local.Rus, "Генерация уже идёт"),
	)
	MessageMediaFailed = local.NewSet(
		"Generation failed. Try later",
		local.NewTrans(local.Rus, "Не удалось сгенерировать. Попробуйте позже"),
	)
	MessageMediaDemo = local.NewSet(
		"Using a demo track",
		local.NewTrans(local.Rus, "Используется демо-трек"),
	)
	MessageVoiceNotRecognized = local.NewSet(
		"I couldn't make out your voice message",
		local.NewTrans(local.Rus, "Не удалось распознать голосовое сообщение"),
	)
	MessageVoiceTranscriptFormat = local.NewSet(
		"You said: %s",
		local.NewTrans(local.Rus, "Вы сказали: %s"),
	)
)

const (
	CommandStart  = "start"
	CommandHelp   = "help"
	CommandNew    = "new"
	CommandExport = "export"
	CommandUsage  = "usage"
	CommandImage  = "image"
	CommandVideo  = "video"
	CommandMusic  = "music"
)

// TelegramBot is the part of *api.BotAPI the bot front end needs.
type TelegramBot interface {
	Send(c api.Chattable) (api.Message, error)
	Request(c api.Chattable) (*api.APIResponse, error)
	GetUpdatesChan(config api.UpdateConfig) api.UpdatesChannel
	GetFileDirectURL(fileID string) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

type TelegramUsecaseDeps struct {
	User   *UserUsecase
	Chat   *ChatUsecase
	Media  *MediaUsecase
	Speech Transcriber
	Bot    TelegramBot
	Files  *http.Client
}

type TelegramUsecase struct {
	TelegramUsecaseDeps
	cfg        config.Telegram
	sessionCfg config.Session
}

// incoming is the part of a Telegram update the bot reacts to.
type incoming struct {
	chatID      int64
	userID      int64
	language    local.Language
	text        string
	command     string
	args        string
	voiceFileID string
}

func NewTelegramUsecase(cfg config.Telegram, sessionCfg config.Session, deps TelegramUsecaseDeps) (*TelegramUsecase, error) {
	_, err := deps.Bot.Request(
		api.NewSetMyCommands(
			[]api.BotCommand{
				{Command: CommandHelp, Description: "Get help"},
				{Command: CommandNew, Description: "Clear context and start a new conversation"},
				{Command: CommandExport, Description: "Download the conversation"},
				{Command: CommandUsage, Description: "Show free messages left"},
				{Command: CommandImage, Description: "Generate an image"},
				{Command: CommandVideo, Description: "Generate a video"},
				{Command: CommandMusic, Description: "Generate a music track"},
			}...,
		),
	)
	if err != nil {
		return nil, err
	}
	if deps.Files == nil {
		deps.Files = http.DefaultClient
	}
	return &TelegramUsecase{
		TelegramUsecaseDeps: deps,
		cfg:                 cfg,
		sessionCfg:          sessionCfg,
	}, nil
}

// Run handles updates one by one until ctx is done.
func (t *TelegramUsecase) Run(ctx context.Context) error {
	u := api.NewUpdate(0)
	u.Timeout = 60

	updates := t.Bot.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			if err := t.handleMessage(ctx, fromMessage(update.Message)); err != nil {
				logger.Error("error handling message", "error", err)
			}
		}
	}
}

func fromMessage(msg *api.Message) incoming {
	in := incoming{
		chatID: msg.Chat.ID,
		userID: msg.Chat.ID,
		text:   msg.Text,
	}
	if msg.From != nil {
		in.userID = msg.From.ID
		in.language = local.ParseLanguage(msg.From.LanguageCode)
	}
	if msg.IsCommand() {
		in.command = msg.Command()
		in.args = strings.TrimSpace(msg.CommandArguments())
	}
	if msg.Voice != nil {
		in.voiceFileID = msg.Voice.FileID
	}
	return in
}

func (t *TelegramUsecase) handleMessage(ctx context.Context, in incoming) error {
	if !t.User.IsAllowed(in.userID) {
		t.sendMessageAndHandleErr(in.chatID, MessageUserNoAccess.Text(in.language))
		return nil
	}

	user, err := t.User.GetUserInfoForTelegramUser(ctx, in.userID)
	if err != nil {
		t.sendMessageAndHandleErr(in.chatID, MessageServerError.Text(in.language))
		return fmt.Errorf("failed to get user info for telegram user: %w", err)
	}
	session, err := t.Chat.Open(
		ctx, model.SessionRef{
			Key:       fmt.Sprintf("telegram:%d", in.chatID),
			UserID:    user.UserID.String(),
			Unlimited: user.Unlimited(),
		},
	)
	if err != nil {
		t.sendMessageAndHandleErr(in.chatID, MessageServerError.Text(in.language))
		return fmt.Errorf("failed to open session: %w", err)
	}

	if in.command != "" {
		return t.handleCommand(ctx, in, session)
	}

	text := in.text
	if in.voiceFileID != "" {
		if text, err = t.transcribeVoice(ctx, in.voiceFileID); err != nil {
			t.sendMessageAndHandleErr(in.chatID, MessageVoiceNotRecognized.Text(in.language))
			return fmt.Errorf("failed to transcribe voice message: %w", err)
		}
		if text == "" {
			t.sendMessageAndHandleErr(in.chatID, MessageVoiceNotRecognized.Text(in.language))
			return nil
		}
		t.sendMessageAndHandleErr(in.chatID, MessageVoiceTranscriptFormat.Format(in.language, text))
	}
	return t.answer(ctx, in, session, text)
}

func (t *TelegramUsecase) handleCommand(ctx context.Context, in incoming, session *Session) error {
	switch in.command {
	case CommandStart:
		t.sendMessageAndHandleErr(in.chatID, t.sessionCfg.Greeting+"\n\n"+MessageCommandHelp.Text(in.language))
	case CommandHelp:
		t.sendMessageAndHandleErr(in.chatID, MessageCommandHelp.Text(in.language))
	case CommandNew:
		if err := session.Reset(ctx); err != nil {
			if errors.Is(err, model.ErrTurnInFlight) {
				t.sendMessageAndHandleErr(in.chatID, MessageTurnInFlight.Text(in.language))
				return nil
			}
			t.sendMessageAndHandleErr(in.chatID, MessageServerError.Text(in.language))
			return fmt.Errorf("failed to reset session: %w", err)
		}
		t.sendMessageAndHandleErr(in.chatID, MessageConversationReset.Text(in.language))
	case CommandExport:
		doc := api.NewDocument(
			in.chatID, api.FileBytes{
				Name:  "conversation.txt",
				Bytes: []byte(session.Export()),
			},
		)
		if _, err := t.Bot.Send(doc); err != nil {
			return fmt.Errorf("failed to send transcript: %w", err)
		}
	case CommandUsage:
		usage := session.Usage()
		if usage.Limit == 0 {
			t.sendMessageAndHandleErr(in.chatID, MessageUsageUnlimited.Text(in.language))
			return nil
		}
		t.sendMessageAndHandleErr(in.chatID, MessageUsageFormat.Format(in.language, usage.Used, usage.Limit))
	case CommandImage, CommandVideo, CommandMusic:
		return t.generateMedia(ctx, in, session)
	default:
		t.sendMessageAndHandleErr(in.chatID, MessageCommandUnknown.Text(in.language))
	}
	return nil
}

func (t *TelegramUsecase) generateMedia(ctx context.Context, in incoming, session *Session) error {
	if in.args == "" {
		t.sendMessageAndHandleErr(in.chatID, MessageMediaPromptRequired.Text(in.language))
		return nil
	}
	kind, err := model.ParseMediaKind(in.command)
	if err != nil {
		return err
	}
	t.sendChatAction(in.chatID, api.ChatTyping)

	msg, result, err := t.Media.Generate(ctx, session, model.MediaRequest{Kind: kind, Prompt: in.args})
	switch {
	case errors.Is(err, model.ErrMediaBusy):
		t.sendMessageAndHandleErr(in.chatID, MessageMediaBusy.Text(in.language))
		return nil
	case err != nil:
		t.sendMessageAndHandleErr(in.chatID, MessageMediaFailed.Text(in.language))
		return err
	}

	text := msg.Content + "\n" + result.URL
	if result.IsDemo {
		text += "\n" + MessageMediaDemo.Text(in.language)
	}
	t.sendMessageAndHandleErr(in.chatID, text)
	return nil
}

func (t *TelegramUsecase) transcribeVoice(ctx context.Context, fileID string) (string, error) {
	fileURL, err := t.Bot.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("failed to get voice file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := t.Files.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download voice file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download voice file: status %d", resp.StatusCode)
	}
	return t.Speech.Transcribe(ctx, "voice.ogg", resp.Body)
}

func (t *TelegramUsecase) answer(ctx context.Context, in incoming, session *Session, text string) error {
	updates, err := session.Submit(ctx, text)
	switch {
	case errors.Is(err, model.ErrEmptyInput):
		return nil
	case errors.Is(err, model.ErrTurnInFlight):
		t.sendMessageAndHandleErr(in.chatID, MessageTurnInFlight.Text(in.language))
		return nil
	case errors.Is(err, model.ErrMessageLimitReached):
		t.sendMessageAndHandleErr(
			in.chatID, MessageLimitReachedFormat.Format(in.language, session.Usage().Limit, t.sessionCfg.UpgradeURL),
		)
		return nil
	case err != nil:
		return err
	}

	throttledAnswerChan := make(chan string)
	wg := conc.NewWaitGroup()
	wg.Go(
		func() {
			defer close(throttledAnswerChan)
			var lastUpdateTime time.Time
			for update := range updates {
				// Telegram rate-limits edits well below the documented one per second.
				// https://core.telegram.org/bots/faq#my-bot-is-hitting-limits-how-do-i-avoid-this
				if update.Done || time.Since(lastUpdateTime) >= t.cfg.EditInterval {
					throttledAnswerChan <- update.Message.Content
					lastUpdateTime = time.Now()
				}
			}
		},
	)
	wg.Go(
		func() {
			t.sendChatAction(in.chatID, api.ChatTyping)

			var answerMsgID int
			var lastSent string
			for currentAnswer := range throttledAnswerChan {
				if len(currentAnswer) == 0 || currentAnswer == lastSent {
					continue
				}
				if answerMsgID == 0 {
					answerMsg, err := t.sendMessage(in.chatID, currentAnswer)
					if err != nil {
						logger.Warn("failed to send answer to bot", "error", err)
						continue
					}
					answerMsgID = answerMsg.MessageID
				} else if _, err := t.sendEditMessage(in.chatID, answerMsgID, currentAnswer); err != nil {
					logger.Warn("failed to send new edit message to bot", "error", err)
				}
				lastSent = currentAnswer
			}
		},
	)
	wg.Wait()
	return nil
}

func (t *TelegramUsecase) sendChatAction(chatID int64, action string) {
	if _, err := t.Bot.Request(api.NewChatAction(chatID, action)); err != nil {
		logger.Warn("failed to send new action to bot", "error", err)
	}
}

func (t *TelegramUsecase) sendMessageAndHandleErr(chatID int64, message string) api.Message {
	msg, err := t.sendMessage(chatID, message)
	if err != nil {
		logger.Warn("failed to send new message to bot", "error", err)
	}
	return msg
}

func (t *TelegramUsecase) sendMessage(chatID int64, message string) (api.Message, error) {
	return t.Bot.Send(api.NewMessage(chatID, message))
}

func (t *TelegramUsecase) sendEditMessage(chatID int64, previousMsgID int, message string) (api.Message, error) {
	return t.Bot.Send(api.NewEditMessageText(chatID, previousMsgID, message))
}
