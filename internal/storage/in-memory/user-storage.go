package in_memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/iamvkosarev/epic-tech-ai/internal/model"
)

type UserStorage struct {
	mu               sync.RWMutex
	users            map[uuid.UUID]*model.User
	telegramUsersIDs map[int64]uuid.UUID
}

func NewUserStorage() *UserStorage {
	return &UserStorage{
		users:            make(map[uuid.UUID]*model.User),
		telegramUsersIDs: make(map[int64]uuid.UUID),
	}
}

func (u *UserStorage) CreateNewTelegramUser(
	_ context.Context,
	userTelegramID int64,
	roles []model.UserRole,
) (uuid.UUID, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.telegramUsersIDs[userTelegramID]; ok {
		return uuid.Nil, model.ErrUserAlreadyExists
	}
	userID := model.TelegramUserID(userTelegramID)
	u.telegramUsersIDs[userTelegramID] = userID

	newUserRoles := []model.UserRole{
		model.UserRoleDefault,
	}
	for _, role := range roles {
		if role != model.UserRoleDefault {
			newUserRoles = append(newUserRoles, role)
		}
	}
	u.users[userID] = &model.User{
		TelegramID: userTelegramID,
		UserID:     userID,
		Roles:      newUserRoles,
	}
	return userID, nil
}

func (u *UserStorage) GetUserInfo(_ context.Context, userID uuid.UUID) (model.User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	user, ok := u.users[userID]
	if !ok {
		return model.User{}, model.ErrUserDoesNotExists
	}
	return *user, nil
}

func (u *UserStorage) GetUserIDForTelegramUser(_ context.Context, userTelegramID int64) (uuid.UUID, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	userID, ok := u.telegramUsersIDs[userTelegramID]
	if !ok {
		return uuid.Nil, model.ErrTelegramUserDoesNotExists
	}
	return userID, nil
}
