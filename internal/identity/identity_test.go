package identity

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airwave/internal/models"
)

type stubUserLookup struct {
	users map[uint]*models.User
}

func (s *stubUserLookup) GetByID(_ context.Context, id uint) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	return u, nil
}

func TestAnonymousDisplayName(t *testing.T) {
	ident := Anonymous("203.0.113.9", time.Now())

	assert.Regexp(t, regexp.MustCompile(`^Anonymous User #[0-9a-f]{4}$`), ident.DisplayName)
	assert.True(t, ident.IsAnonymous())
	assert.Equal(t, models.RoleListener, ident.Role)
	assert.False(t, ident.IsStaff())
}

func TestAnonymousSuffixVariesWithConnectTime(t *testing.T) {
	base := time.Unix(0, 1700000000000000000)
	a := Anonymous("203.0.113.9", base)
	b := Anonymous("203.0.113.9", base.Add(time.Millisecond))

	// Two listeners behind the same NAT should still read as distinct.
	assert.NotEqual(t, a.DisplayName, b.DisplayName)
	// But both map to the same moderation key.
	assert.Equal(t, a.Key(), b.Key())
}

func TestIdentityKey(t *testing.T) {
	id := uint(42)
	user := Identity{UserID: &id}
	assert.Equal(t, "user:42", user.Key())

	anon := Identity{Fingerprint: "203.0.113.9"}
	assert.Equal(t, "anon:203.0.113.9", anon.Key())
}

func TestIdentityCapabilities(t *testing.T) {
	id := uint(1)
	listener := Identity{UserID: &id, Role: models.RoleListener}
	staff := Identity{UserID: &id, Role: models.RoleStaff}
	admin := Identity{UserID: &id, Role: models.RoleAdmin}

	for _, capability := range []string{CapPinMessage, CapDeleteMessage, CapModerate} {
		assert.False(t, listener.Can(capability), capability)
		assert.True(t, staff.Can(capability), capability)
		assert.True(t, admin.Can(capability), capability)
	}
	assert.False(t, staff.Can("reboot_transmitter"))
}

func TestFromUserFallbackName(t *testing.T) {
	ident := FromUser(&models.User{ID: 7, Role: models.RoleListener}, "203.0.113.9")
	assert.Equal(t, "User #7", ident.DisplayName)
	assert.Equal(t, "user:7", ident.Key())
}

func TestNormalizeFingerprint(t *testing.T) {
	assert.Equal(t, "203.0.113.9", NormalizeFingerprint("203.0.113.9:54321"))
	assert.Equal(t, "203.0.113.9", NormalizeFingerprint("203.0.113.9"))
	assert.Equal(t, "[2001:db8::1]:443", NormalizeFingerprint("[2001:db8::1]:443"))
}

func TestResolver_ValidToken(t *testing.T) {
	lookup := &stubUserLookup{users: map[uint]*models.User{
		7: {ID: 7, DisplayName: "Dana", Role: models.RoleStaff},
	}}
	r := NewResolver(func(token string) (uint, error) {
		if token == "good" {
			return 7, nil
		}
		return 0, errors.New("invalid token")
	}, lookup)

	ident := r.Resolve(context.Background(), "good", "203.0.113.9:54321")
	require.NotNil(t, ident.UserID)
	assert.Equal(t, uint(7), *ident.UserID)
	assert.Equal(t, "Dana", ident.DisplayName)
	assert.True(t, ident.IsStaff())
	assert.Equal(t, "203.0.113.9", ident.Fingerprint)
}

func TestResolver_BadTokenDegradesToAnonymous(t *testing.T) {
	lookup := &stubUserLookup{users: map[uint]*models.User{}}
	r := NewResolver(func(string) (uint, error) {
		return 0, errors.New("invalid token")
	}, lookup)

	ident := r.Resolve(context.Background(), "forged", "203.0.113.9:54321")
	assert.True(t, ident.IsAnonymous())
	assert.Equal(t, "203.0.113.9", ident.Fingerprint)
}

func TestResolver_UnknownUserDegradesToAnonymous(t *testing.T) {
	lookup := &stubUserLookup{users: map[uint]*models.User{}}
	r := NewResolver(func(string) (uint, error) { return 99, nil }, lookup)

	ident := r.Resolve(context.Background(), "stale", "203.0.113.9:54321")
	assert.True(t, ident.IsAnonymous())
}

func TestResolver_EmptyToken(t *testing.T) {
	r := NewResolver(nil, nil)

	ident := r.Resolve(context.Background(), "", "203.0.113.9:54321")
	assert.True(t, ident.IsAnonymous())
}
