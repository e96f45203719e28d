package identity

import (
	"context"
	"time"

	"airwave/internal/models"
)

// TokenParser validates a bearer token and returns the subject user ID.
type TokenParser func(token string) (uint, error)

// UserLookup loads a user record by ID.
type UserLookup interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// Resolver turns an optional bearer credential plus a network origin into an
// Identity. A bad or missing token degrades to an anonymous identity rather
// than failing the connection.
type Resolver struct {
	parse TokenParser
	users UserLookup
}

func NewResolver(parse TokenParser, users UserLookup) *Resolver {
	return &Resolver{parse: parse, users: users}
}

// Resolve returns the identity for the given credentials. token may be empty.
func (r *Resolver) Resolve(ctx context.Context, token, origin string) Identity {
	fingerprint := NormalizeFingerprint(origin)

	if token != "" && r.parse != nil {
		if userID, err := r.parse(token); err == nil {
			if user, err := r.users.GetByID(ctx, userID); err == nil {
				return FromUser(user, fingerprint)
			}
		}
	}

	return Anonymous(fingerprint, time.Now())
}
