package rooms

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"airwave/internal/cache"
	"airwave/internal/models"
	"airwave/internal/repository"
)

func setupRegistryTest(t *testing.T) (*Registry, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Broadcast{}))

	mr := miniredis.RunT(t)
	cache.SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { cache.SetClient(nil) })

	return NewRegistry(repository.NewBroadcastRepository(db)), db
}

func createBroadcast(t *testing.T, db *gorm.DB, title, slug string) *models.Broadcast {
	t.Helper()
	b := &models.Broadcast{Title: title, Slug: slug}
	require.NoError(t, db.Create(b).Error)
	return b
}

func TestRegistry_SlugAndIDResolveToSameRoom(t *testing.T) {
	reg, db := setupRegistryTest(t)
	ctx := context.Background()

	b := createBroadcast(t, db, "Drive Time", "drive-time")

	bySlug, err := reg.Resolve(ctx, "drive-time")
	require.NoError(t, err)
	byID, err := reg.Resolve(ctx, fmt.Sprintf("%d", b.ID))
	require.NoError(t, err)

	assert.Equal(t, bySlug.ID, byID.ID)
	assert.Equal(t, bySlug.RoomKey(), byID.RoomKey())
	assert.Equal(t, fmt.Sprintf("broadcast:%d", b.ID), bySlug.RoomKey())
}

func TestRegistry_NumericIdentifierPrefersDurableID(t *testing.T) {
	reg, db := setupRegistryTest(t)
	ctx := context.Background()

	first := createBroadcast(t, db, "Morning Show", "morning-show")
	// A second broadcast whose slug is the first one's ID must not shadow it.
	createBroadcast(t, db, "Numbers Station", fmt.Sprintf("%d", first.ID))

	resolved, err := reg.Resolve(ctx, fmt.Sprintf("%d", first.ID))
	require.NoError(t, err)
	assert.Equal(t, first.ID, resolved.ID)
	assert.Equal(t, "Morning Show", resolved.Title)
}

func TestRegistry_NumericSlugFallback(t *testing.T) {
	reg, db := setupRegistryTest(t)
	ctx := context.Background()

	b := createBroadcast(t, db, "Frequency 404", "90210")

	// No broadcast has ID 90210, so the lookup falls back to the slug.
	resolved, err := reg.Resolve(ctx, "90210")
	require.NoError(t, err)
	assert.Equal(t, b.ID, resolved.ID)
}

func TestRegistry_UnknownIdentifier(t *testing.T) {
	reg, _ := setupRegistryTest(t)

	_, err := reg.Resolve(context.Background(), "no-such-show")
	assert.True(t, models.IsAppErrorCode(err, "NOT_FOUND"))
}

func TestRegistry_EmptyIdentifier(t *testing.T) {
	reg, _ := setupRegistryTest(t)

	_, err := reg.Resolve(context.Background(), "")
	assert.True(t, models.IsAppErrorCode(err, "VALIDATION_ERROR"))
}

func TestRegistry_ResolveRoomKey(t *testing.T) {
	reg, db := setupRegistryTest(t)
	ctx := context.Background()

	b := createBroadcast(t, db, "Late Night", "late-night")

	key, err := reg.ResolveRoomKey(ctx, "late-night")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("broadcast:%d", b.ID), key)
}

func TestRegistry_ResolveServedFromCache(t *testing.T) {
	reg, db := setupRegistryTest(t)
	ctx := context.Background()

	b := createBroadcast(t, db, "Drive Time", "drive-time")

	_, err := reg.Resolve(ctx, "drive-time")
	require.NoError(t, err)

	// Delete the row; the cached copy still answers until invalidated.
	require.NoError(t, db.Delete(&models.Broadcast{}, b.ID).Error)

	resolved, err := reg.Resolve(ctx, "drive-time")
	require.NoError(t, err)
	assert.Equal(t, b.ID, resolved.ID)

	cache.InvalidateBroadcast(ctx, b.ID, "drive-time")
	_, err = reg.Resolve(ctx, "drive-time")
	assert.True(t, models.IsAppErrorCode(err, "NOT_FOUND"))
}
