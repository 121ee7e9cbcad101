package model

import "errors"

var (
	ErrEmptyInput          = errors.New("message is empty")
	ErrTurnInFlight        = errors.New("a reply is already being generated")
	ErrMessageLimitReached = errors.New("free message limit reached")
	ErrMissingCredential   = errors.New("completion provider credential is not configured")
	ErrUnknownRole         = errors.New("unknown message role")

	ErrUnknownMediaKind = errors.New("unknown media kind")
	ErrEmptyPrompt      = errors.New("media prompt is empty")
	ErrMediaBusy        = errors.New("media generation already running")

	ErrTranscriptDoesNotExist    = errors.New("transcript does not exist")
	ErrUserAlreadyExists         = errors.New("user already exists")
	ErrUserDoesNotExists         = errors.New("user doesn't exists")
	ErrTelegramUserDoesNotExists = errors.New("telegram user doesn't exists")
)

// IsRejection reports whether err is a precondition rejection rather than a failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrEmptyInput) ||
		errors.Is(err, ErrTurnInFlight) ||
		errors.Is(err, ErrMessageLimitReached)
}
