package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/iamvkosarev/epic-tech-ai/config"
	"github.com/iamvkosarev/epic-tech-ai/internal/model"
)

type UserStorage interface {
	GetUserIDForTelegramUser(ctx context.Context, userTelegramID int64) (uuid.UUID, error)
	CreateNewTelegramUser(ctx context.Context, userTelegramID int64, roles []model.UserRole) (uuid.UUID, error)
	GetUserInfo(ctx context.Context, userID uuid.UUID) (model.User, error)
}

type UserUsecaseDeps struct {
	UserStorage UserStorage
}

type UserUsecase struct {
	UserUsecaseDeps
	telegramCfg config.Telegram
}

func NewUserUsecase(deps UserUsecaseDeps, telegramCfg config.Telegram) *UserUsecase {
	return &UserUsecase{
		UserUsecaseDeps: deps,
		telegramCfg:     telegramCfg,
	}
}

// GetUserInfoForTelegramUser returns the user behind a Telegram account, registering it on first contact.
func (u *UserUsecase) GetUserInfoForTelegramUser(ctx context.Context, userTelegramID int64) (model.User, error) {
	userID, err := u.UserStorage.GetUserIDForTelegramUser(ctx, userTelegramID)
	if errors.Is(err, model.ErrTelegramUserDoesNotExists) {
		userID, err = u.UserStorage.CreateNewTelegramUser(ctx, userTelegramID, u.getTelegramUserRoles(userTelegramID))
		if errors.Is(err, model.ErrUserAlreadyExists) {
			userID, err = u.UserStorage.GetUserIDForTelegramUser(ctx, userTelegramID)
		}
	}
	if err != nil {
		return model.User{}, fmt.Errorf("failed to resolve telegram user %d: %w", userTelegramID, err)
	}
	return u.UserStorage.GetUserInfo(ctx, userID)
}

func (u *UserUsecase) GetUserInfo(ctx context.Context, userID uuid.UUID) (model.User, error) {
	return u.UserStorage.GetUserInfo(ctx, userID)
}

// IsAllowed reports whether a Telegram account may talk to a private bot.
func (u *UserUsecase) IsAllowed(userTelegramID int64) bool {
	if !u.telegramCfg.IsNotPublic {
		return true
	}
	return slices.Contains(u.telegramCfg.AdminTelegramIDList, userTelegramID) ||
		slices.Contains(u.telegramCfg.PremiumTelegramIDList, userTelegramID)
}

func (u *UserUsecase) getTelegramUserRoles(userTelegramID int64) []model.UserRole {
	roles := []model.UserRole{
		model.UserRoleDefault,
	}
	if slices.Contains(u.telegramCfg.AdminTelegramIDList, userTelegramID) {
		roles = append(roles, model.UserRoleAdmin)
	}
	if slices.Contains(u.telegramCfg.PremiumTelegramIDList, userTelegramID) {
		roles = append(roles, model.UserRolePremium)
	}
	return roles
}
