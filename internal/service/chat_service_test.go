package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"airwave/internal/identity"
	"airwave/internal/models"
	"airwave/internal/repository"
)

func setupChatServiceTest(t *testing.T) (*ChatService, *ModerationService, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Broadcast{},
		&models.ChatMessage{},
		&models.ChatSession{},
		&models.ModerationAction{},
	))

	moderation := NewModerationService(repository.NewModerationRepository(db))
	chat := NewChatService(repository.NewMessageRepository(db), moderation, 50)
	return chat, moderation, db
}

func userIdentity(id uint, name string) identity.Identity {
	return identity.Identity{UserID: &id, DisplayName: name, Role: models.RoleListener}
}

func staffIdentity(id uint, name string) identity.Identity {
	return identity.Identity{UserID: &id, DisplayName: name, Role: models.RoleStaff}
}

func anonIdentity(fingerprint string) identity.Identity {
	return identity.Identity{DisplayName: "Anonymous User #" + fingerprint[:4], Fingerprint: fingerprint}
}

func TestChatService_SendMessagePersists(t *testing.T) {
	chat, _, db := setupChatServiceTest(t)
	ctx := context.Background()

	msg, err := chat.SendMessage(ctx, userIdentity(1, "dana"), "broadcast:1", "hello room", nil)
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	assert.Equal(t, "broadcast:1", msg.RoomKey)
	assert.Equal(t, models.MessageTypeUser, msg.MessageType)
	assert.Equal(t, "dana", msg.AuthorName)

	var count int64
	db.Model(&models.ChatMessage{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestChatService_SendMessageValidation(t *testing.T) {
	chat, _, _ := setupChatServiceTest(t)
	ctx := context.Background()
	ident := userIdentity(1, "dana")

	_, err := chat.SendMessage(ctx, ident, "broadcast:1", "   ", nil)
	assert.True(t, models.IsAppErrorCode(err, "VALIDATION_ERROR"))

	_, err = chat.SendMessage(ctx, ident, "broadcast:1", strings.Repeat("x", maxMessageLength+1), nil)
	assert.True(t, models.IsAppErrorCode(err, "VALIDATION_ERROR"))
}

// Bans are checked at the send boundary on purpose: a ban issued mid-session
// rejects the target's very next message instead of waiting for a reconnect.
func TestChatService_BanTakesEffectAtSendTime(t *testing.T) {
	chat, moderation, _ := setupChatServiceTest(t)
	ctx := context.Background()
	ident := userIdentity(7, "troll")

	// Sending works before the ban lands.
	_, err := chat.SendMessage(ctx, ident, "broadcast:2", "still here", nil)
	require.NoError(t, err)

	require.NoError(t, moderation.Ban(ctx, "broadcast:2", ident.UserID, "", 99, "spam", nil))

	_, err = chat.SendMessage(ctx, ident, "broadcast:2", "one more", nil)
	assert.True(t, models.IsAppErrorCode(err, "FORBIDDEN"))

	// The ban is scoped to its room.
	_, err = chat.SendMessage(ctx, ident, "broadcast:3", "different room", nil)
	assert.NoError(t, err)
}

func TestChatService_MuteTakesEffectAtSendTime(t *testing.T) {
	chat, moderation, _ := setupChatServiceTest(t)
	ctx := context.Background()
	ident := anonIdentity("10.0.0.9")

	require.NoError(t, moderation.Mute(ctx, "broadcast:1", nil, ident.Fingerprint, 99, "calm down", nil))

	_, err := chat.SendMessage(ctx, ident, "broadcast:1", "muffled", nil)
	assert.True(t, models.IsAppErrorCode(err, "FORBIDDEN"))
}

func TestChatService_ToggleLikeRoundTrip(t *testing.T) {
	chat, _, _ := setupChatServiceTest(t)
	ctx := context.Background()
	author := userIdentity(1, "dana")
	liker := userIdentity(2, "sam")

	msg, err := chat.SendMessage(ctx, author, "broadcast:1", "like me", nil)
	require.NoError(t, err)

	updated, liked, err := chat.ToggleLike(ctx, liker, msg.ID)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, 1, updated.LikeCount)
	assert.True(t, updated.LikedByContains(liker.Key()))

	updated, liked, err = chat.ToggleLike(ctx, liker, msg.ID)
	require.NoError(t, err)
	assert.False(t, liked)
	assert.Equal(t, 0, updated.LikeCount)
	assert.Empty(t, updated.LikedBy)
}

func TestChatService_ToggleLikeUnknownMessage(t *testing.T) {
	chat, _, _ := setupChatServiceTest(t)

	_, _, err := chat.ToggleLike(context.Background(), userIdentity(2, "sam"), 4242)
	assert.True(t, models.IsAppErrorCode(err, "NOT_FOUND"))
}

func TestChatService_ConcurrentTogglesKeepCountExact(t *testing.T) {
	chat, _, _ := setupChatServiceTest(t)
	ctx := context.Background()

	msg, err := chat.SendMessage(ctx, userIdentity(1, "dana"), "broadcast:1", "popular", nil)
	require.NoError(t, err)

	const likers = 20
	var wg sync.WaitGroup
	for i := 0; i < likers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ident := userIdentity(uint(100+n), fmt.Sprintf("fan-%d", n))
			_, _, err := chat.ToggleLike(ctx, ident, msg.ID)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	final, _, err := chat.ToggleLike(ctx, userIdentity(999, "late"), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, likers+1, final.LikeCount)
	assert.Len(t, final.LikedBy, final.LikeCount)
}

func TestChatService_TogglePinRequiresStaff(t *testing.T) {
	chat, _, _ := setupChatServiceTest(t)
	ctx := context.Background()

	msg, err := chat.SendMessage(ctx, userIdentity(1, "dana"), "broadcast:1", "pin me", nil)
	require.NoError(t, err)

	_, err = chat.TogglePin(ctx, userIdentity(2, "sam"), msg.ID)
	assert.True(t, models.IsAppErrorCode(err, "FORBIDDEN"))

	pinned, err := chat.TogglePin(ctx, staffIdentity(3, "host"), msg.ID)
	require.NoError(t, err)
	assert.True(t, pinned.IsPinned)

	unpinned, err := chat.TogglePin(ctx, staffIdentity(3, "host"), msg.ID)
	require.NoError(t, err)
	assert.False(t, unpinned.IsPinned)
}

func TestChatService_DeleteMessagePermissions(t *testing.T) {
	chat, _, db := setupChatServiceTest(t)
	ctx := context.Background()
	author := userIdentity(1, "dana")

	msg, err := chat.SendMessage(ctx, author, "broadcast:1", "regret this", nil)
	require.NoError(t, err)

	_, err = chat.DeleteMessage(ctx, userIdentity(2, "sam"), msg.ID)
	assert.True(t, models.IsAppErrorCode(err, "FORBIDDEN"))

	_, err = chat.DeleteMessage(ctx, author, msg.ID)
	require.NoError(t, err)

	var count int64
	db.Model(&models.ChatMessage{}).Where("room_key = ?", "broadcast:1").Count(&count)
	assert.Equal(t, int64(0), count)

	// Staff can remove anyone's message.
	other, err := chat.SendMessage(ctx, userIdentity(5, "guest"), "broadcast:1", "offending", nil)
	require.NoError(t, err)
	_, err = chat.DeleteMessage(ctx, staffIdentity(3, "host"), other.ID)
	assert.NoError(t, err)
}

func TestChatService_HistoryOldestFirstWithinLimit(t *testing.T) {
	chat, _, _ := setupChatServiceTest(t)
	ctx := context.Background()
	ident := userIdentity(1, "dana")

	for i := 0; i < 5; i++ {
		msg, err := chat.SendMessage(ctx, ident, "broadcast:1", fmt.Sprintf("message %d", i), nil)
		require.NoError(t, err)
		require.NotZero(t, msg.ID)
	}

	history, err := chat.History(ctx, "broadcast:1")
	require.NoError(t, err)
	require.Len(t, history, 5)
	for i := 1; i < len(history); i++ {
		assert.LessOrEqual(t, history[i-1].ID, history[i].ID)
	}
}

func TestChatService_SystemMessage(t *testing.T) {
	chat, _, _ := setupChatServiceTest(t)

	msg, err := chat.SystemMessage(context.Background(), "broadcast:1", "Drive Time is now live")
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypeSystem, msg.MessageType)
	assert.Equal(t, "System", msg.AuthorName)
	assert.Nil(t, msg.AuthorID)
}
