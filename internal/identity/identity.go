// Package identity resolves who a connection belongs to: an authenticated
// user looked up from a bearer token, or an anonymous listener keyed by
// network-origin fingerprint.
package identity

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"airwave/internal/models"
)

// Identity describes the actor behind a connection or request.
type Identity struct {
	UserID      *uint  `json:"user_id,omitempty"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Fingerprint string `json:"-"`
}

// IsAnonymous reports whether the identity has no backing user account.
func (i Identity) IsAnonymous() bool {
	return i.UserID == nil
}

// Key returns a stable map key: "user:<id>" for accounts, "anon:<fp>" otherwise.
func (i Identity) Key() string {
	if i.UserID != nil {
		return fmt.Sprintf("user:%d", *i.UserID)
	}
	return fmt.Sprintf("anon:%s", i.Fingerprint)
}

// IsStaff reports whether the identity can moderate rooms.
func (i Identity) IsStaff() bool {
	return i.Role == models.RoleStaff || i.Role == models.RoleAdmin
}

// Capabilities gated on role or authorship.
const (
	CapPinMessage    = "pin_message"
	CapDeleteMessage = "delete_message"
	CapModerate      = "moderate"
)

// Can reports whether the identity holds the capability. Deletion additionally
// allows authors to remove their own messages; that check lives with the
// message since it needs the author ID.
func (i Identity) Can(capability string) bool {
	switch capability {
	case CapPinMessage, CapDeleteMessage, CapModerate:
		return i.IsStaff()
	}
	return false
}

// FromUser builds an identity from a stored user record.
func FromUser(u *models.User, fingerprint string) Identity {
	id := u.ID
	name := u.DisplayName
	if name == "" {
		name = fmt.Sprintf("User #%d", u.ID)
	}
	return Identity{
		UserID:      &id,
		DisplayName: name,
		Role:        u.Role,
		AvatarURL:   u.AvatarURL,
		Fingerprint: fingerprint,
	}
}

// Anonymous builds a low-assurance identity from the connection's network
// origin. The display suffix is a short hash of the fingerprint and connect
// time, so listeners behind the same NAT still get distinct names.
func Anonymous(fingerprint string, connectedAt time.Time) Identity {
	return Identity{
		DisplayName: fmt.Sprintf("Anonymous User #%s", anonSuffix(fingerprint, connectedAt)),
		Role:        models.RoleListener,
		Fingerprint: fingerprint,
	}
}

func anonSuffix(fingerprint string, connectedAt time.Time) string {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s|%d", fingerprint, connectedAt.UnixNano())
	return fmt.Sprintf("%04x", h.Sum32()&0xffff)
}

// NormalizeFingerprint strips a port from host:port origins so the same
// client maps to one fingerprint across reconnects.
func NormalizeFingerprint(origin string) string {
	if idx := strings.LastIndex(origin, ":"); idx > 0 && !strings.Contains(origin, "]") {
		// IPv4 or hostname with port
		if strings.Count(origin, ":") == 1 {
			return origin[:idx]
		}
	}
	return origin
}
