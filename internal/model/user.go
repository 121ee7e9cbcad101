package model

import (
	"strconv"

	"github.com/google/uuid"
)

var telegramUserNamespace = uuid.MustParse("5b0c9a3e-6f1d-4c2a-9e57-8d4f2b7a1c60")

// TelegramUserID derives the user id of a Telegram account; it is the same in every process.
func TelegramUserID(telegramID int64) uuid.UUID {
	return uuid.NewSHA1(telegramUserNamespace, []byte(strconv.FormatInt(telegramID, 10)))
}

type User struct {
	UserID     uuid.UUID
	TelegramID int64
	Roles      []UserRole
}

// Unlimited reports whether any of the user's roles lifts the free message limit.
func (u User) Unlimited() bool {
	for _, role := range u.Roles {
		if role.Unlimited() {
			return true
		}
	}
	return false
}
