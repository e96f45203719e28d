package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"airwave/internal/models"
	"airwave/internal/repository"
)

func setupModerationTest(t *testing.T) (*ModerationService, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.ChatSession{},
		&models.ModerationAction{},
	))
	return NewModerationService(repository.NewModerationRepository(db)), db
}

func uintPtr(v uint) *uint { return &v }

func TestModerationService_BanByUserID(t *testing.T) {
	svc, _ := setupModerationTest(t)
	ctx := context.Background()

	require.NoError(t, svc.Ban(ctx, "broadcast:1", uintPtr(7), "", 1, "spam", nil))

	banned, err := svc.IsBanned(ctx, "broadcast:1", uintPtr(7), "")
	require.NoError(t, err)
	assert.True(t, banned)

	// Other users and other rooms are unaffected.
	banned, err = svc.IsBanned(ctx, "broadcast:1", uintPtr(8), "")
	require.NoError(t, err)
	assert.False(t, banned)

	banned, err = svc.IsBanned(ctx, "broadcast:2", uintPtr(7), "")
	require.NoError(t, err)
	assert.False(t, banned)
}

func TestModerationService_BanByFingerprint(t *testing.T) {
	svc, _ := setupModerationTest(t)
	ctx := context.Background()

	require.NoError(t, svc.Ban(ctx, "broadcast:1", nil, "198.51.100.7", 1, "spam", nil))

	// A match on either the user ID or the fingerprint counts, so an
	// anonymous visitor cannot dodge the ban by logging in.
	banned, err := svc.IsBanned(ctx, "broadcast:1", nil, "198.51.100.7")
	require.NoError(t, err)
	assert.True(t, banned)

	banned, err = svc.IsBanned(ctx, "broadcast:1", uintPtr(42), "198.51.100.7")
	require.NoError(t, err)
	assert.True(t, banned)

	banned, err = svc.IsBanned(ctx, "broadcast:1", nil, "198.51.100.8")
	require.NoError(t, err)
	assert.False(t, banned)
}

func TestModerationService_BanExpiry(t *testing.T) {
	svc, db := setupModerationTest(t)
	ctx := context.Background()

	minutes := 30
	require.NoError(t, svc.Ban(ctx, "broadcast:1", uintPtr(7), "", 1, "cooldown", &minutes))

	var action models.ModerationAction
	require.NoError(t, db.First(&action).Error)
	require.NotNil(t, action.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), *action.ExpiresAt, 5*time.Second)

	assert.True(t, action.InEffect(time.Now()))
	assert.False(t, action.InEffect(time.Now().Add(31*time.Minute)))

	// Once the record lapses, the ban no longer holds. The session flag is
	// the fast path, so clear it the way an expiry sweep would.
	expired := time.Now().Add(-time.Minute)
	require.NoError(t, db.Model(&action).Update("expires_at", expired).Error)

	banned, err := svc.IsBanned(ctx, "broadcast:1", uintPtr(7), "")
	require.NoError(t, err)
	assert.False(t, banned)
}

func TestModerationService_UnbanClearsFlagsAndRecords(t *testing.T) {
	svc, db := setupModerationTest(t)
	ctx := context.Background()

	require.NoError(t, svc.OpenSession(ctx, "broadcast:1", uintPtr(7), "10.0.0.5"))
	require.NoError(t, svc.Ban(ctx, "broadcast:1", uintPtr(7), "10.0.0.5", 1, "spam", nil))

	banned, err := svc.IsBanned(ctx, "broadcast:1", uintPtr(7), "10.0.0.5")
	require.NoError(t, err)
	require.True(t, banned)

	require.NoError(t, svc.Unban(ctx, "broadcast:1", uintPtr(7), "10.0.0.5"))

	banned, err = svc.IsBanned(ctx, "broadcast:1", uintPtr(7), "10.0.0.5")
	require.NoError(t, err)
	assert.False(t, banned)

	var session models.ChatSession
	require.NoError(t, db.Where("room_key = ?", "broadcast:1").First(&session).Error)
	assert.False(t, session.IsBanned)
}

func TestModerationService_MuteDoesNotBan(t *testing.T) {
	svc, _ := setupModerationTest(t)
	ctx := context.Background()

	require.NoError(t, svc.Mute(ctx, "broadcast:1", uintPtr(7), "", 1, "spoilers", nil))

	muted, err := svc.IsMuted(ctx, "broadcast:1", uintPtr(7), "")
	require.NoError(t, err)
	assert.True(t, muted)

	banned, err := svc.IsBanned(ctx, "broadcast:1", uintPtr(7), "")
	require.NoError(t, err)
	assert.False(t, banned)
}

func TestModerationService_KickMarksSessionOffline(t *testing.T) {
	svc, db := setupModerationTest(t)
	ctx := context.Background()

	require.NoError(t, svc.OpenSession(ctx, "broadcast:1", uintPtr(7), "10.0.0.5"))
	require.NoError(t, svc.Kick(ctx, "broadcast:1", uintPtr(7), "10.0.0.5", 1, "be nice"))

	var session models.ChatSession
	require.NoError(t, db.Where("room_key = ?", "broadcast:1").First(&session).Error)
	assert.False(t, session.IsOnline)
	assert.False(t, session.IsBanned, "a kick does not leave a standing restriction")

	banned, err := svc.IsBanned(ctx, "broadcast:1", uintPtr(7), "10.0.0.5")
	require.NoError(t, err)
	assert.False(t, banned)
}

func TestModerationService_SessionUpsertReusesRow(t *testing.T) {
	svc, db := setupModerationTest(t)
	ctx := context.Background()

	require.NoError(t, svc.OpenSession(ctx, "broadcast:1", nil, "10.0.0.5"))
	require.NoError(t, svc.CloseSession(ctx, "broadcast:1", nil, "10.0.0.5"))
	require.NoError(t, svc.OpenSession(ctx, "broadcast:1", nil, "10.0.0.5"))

	var count int64
	db.Model(&models.ChatSession{}).Where("room_key = ?", "broadcast:1").Count(&count)
	assert.Equal(t, int64(1), count)

	var session models.ChatSession
	require.NoError(t, db.Where("room_key = ?", "broadcast:1").First(&session).Error)
	assert.True(t, session.IsOnline)
}

func TestModerationService_ListBans(t *testing.T) {
	svc, _ := setupModerationTest(t)
	ctx := context.Background()

	require.NoError(t, svc.Ban(ctx, "broadcast:1", uintPtr(7), "", 1, "spam", nil))
	require.NoError(t, svc.Ban(ctx, "broadcast:1", nil, "10.0.0.6", 1, "abuse", nil))
	require.NoError(t, svc.Mute(ctx, "broadcast:1", uintPtr(8), "", 1, "noise", nil))
	require.NoError(t, svc.Ban(ctx, "broadcast:2", uintPtr(9), "", 1, "other room", nil))

	bans, err := svc.ListBans(ctx, "broadcast:1")
	require.NoError(t, err)
	assert.Len(t, bans, 2)
	for _, ban := range bans {
		assert.Equal(t, models.ActionBan, ban.ActionType)
		assert.Equal(t, "broadcast:1", ban.RoomKey)
	}
}
