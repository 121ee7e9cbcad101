package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamvkosarev/epic-tech-ai/config"
	"github.com/iamvkosarev/epic-tech-ai/internal/model"
	in_memory "github.com/iamvkosarev/epic-tech-ai/internal/storage/in-memory"
)

func TestUserUsecaseRegistersTelegramUserOnce(t *testing.T) {
	users := NewUserUsecase(
		UserUsecaseDeps{UserStorage: in_memory.NewUserStorage()},
		config.Telegram{PremiumTelegramIDList: []int64{42}},
	)
	ctx := context.Background()

	first, err := users.GetUserInfoForTelegramUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), first.TelegramID)
	assert.Contains(t, first.Roles, model.UserRolePremium)
	assert.True(t, first.Unlimited())

	second, err := users.GetUserInfoForTelegramUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, first.UserID, second.UserID)

	regular, err := users.GetUserInfoForTelegramUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []model.UserRole{model.UserRoleDefault}, regular.Roles)
	assert.False(t, regular.Unlimited())
}

func TestUserUsecaseIsAllowed(t *testing.T) {
	public := NewUserUsecase(UserUsecaseDeps{}, config.Telegram{})
	assert.True(t, public.IsAllowed(1))

	private := NewUserUsecase(
		UserUsecaseDeps{}, config.Telegram{
			IsNotPublic:         true,
			AdminTelegramIDList: []int64{5},
		},
	)
	assert.True(t, private.IsAllowed(5))
	assert.False(t, private.IsAllowed(6))
}
