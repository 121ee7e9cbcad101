package key_value

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/iamvkosarev/epic-tech-ai/internal/model"
	"github.com/redis/go-redis/v9"
)

type userInternal struct {
	UserID     string           `json:"user_id"`
	TelegramID int64            `json:"telegram_id"`
	Roles      []model.UserRole `json:"roles"`
}

type UserStorage struct {
	rdb *redis.Client
}

func NewUserStorage(rdb *redis.Client) *UserStorage {
	return &UserStorage{
		rdb: rdb,
	}
}

func (u *UserStorage) CreateNewTelegramUser(
	ctx context.Context,
	userTelegramID int64,
	roles []model.UserRole,
) (uuid.UUID, error) {
	userTelegramIDKey := getUserTelegramIDKey(userTelegramID)
	userID := model.TelegramUserID(userTelegramID)
	created, err := u.rdb.SetNX(ctx, userTelegramIDKey, userID.String(), 0).Result()
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to save telegram user %s: %w", userTelegramIDKey, err)
	}
	if !created {
		return uuid.Nil, model.ErrUserAlreadyExists
	}

	newUserRoles := []model.UserRole{
		model.UserRoleDefault,
	}
	for _, role := range roles {
		if role != model.UserRoleDefault {
			newUserRoles = append(newUserRoles, role)
		}
	}
	user := userInternal{
		TelegramID: userTelegramID,
		UserID:     userID.String(),
		Roles:      newUserRoles,
	}
	if err = u.setUser(ctx, userID, user); err != nil {
		return uuid.Nil, fmt.Errorf("failed to set user: %w", err)
	}
	return userID, nil
}

func (u *UserStorage) GetUserInfo(ctx context.Context, userID uuid.UUID) (model.User, error) {
	userInt, err := u.getUser(ctx, userID)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return model.User{
		TelegramID: userInt.TelegramID,
		UserID:     userID,
		Roles:      userInt.Roles,
	}, nil
}

func (u *UserStorage) GetUserIDForTelegramUser(ctx context.Context, userTelegramID int64) (uuid.UUID, error) {
	userTelegramIDKey := getUserTelegramIDKey(userTelegramID)
	userIDStr, err := u.rdb.Get(ctx, userTelegramIDKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, model.ErrTelegramUserDoesNotExists
		}
		return uuid.Nil, fmt.Errorf("failed to get telegram user id %s: %w", userTelegramIDKey, err)
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to parse userID %s: %w", userIDStr, err)
	}
	return userID, nil
}

func (u *UserStorage) getUser(ctx context.Context, userID uuid.UUID) (userInternal, error) {
	userIDKey := getUserIDKey(userID)
	userRaw, err := u.rdb.Get(ctx, userIDKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return userInternal{}, model.ErrUserDoesNotExists
		}
		return userInternal{}, fmt.Errorf("failed to get user %s: %w", userID, err)
	}
	var user userInternal
	if err = json.Unmarshal([]byte(userRaw), &user); err != nil {
		return userInternal{}, fmt.Errorf("failed to unmarshal user %s: %w", userID, err)
	}
	return user, nil
}

func (u *UserStorage) setUser(ctx context.Context, userID uuid.UUID, userInt userInternal) error {
	userIDKey := getUserIDKey(userID)
	newUserJSON, err := json.Marshal(userInt)
	if err != nil {
		return fmt.Errorf("failed to marshal internal user: %w", err)
	}
	if err = u.rdb.Set(ctx, userIDKey, newUserJSON, 0).Err(); err != nil {
		return fmt.Errorf("failed to save user %s: %w", userID, err)
	}
	return nil
}

func getUserTelegramIDKey(id int64) string {
	return fmt.Sprintf("telegram_%d", id)
}

func getUserIDKey(id uuid.UUID) string {
	return fmt.Sprintf("user_%s", id.String())
}
