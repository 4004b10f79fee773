// Package authz carries the authenticated user through request context and
// enforces organisation roles.
package authz

import (
	"context"
	"errors"

	"github.com/courtbook/courtbook/internal/store"
)

var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrForbidden       = errors.New("forbidden")
)

// User is the authenticated principal attached to a request.
type User struct {
	ID    int64
	Email string
	Name  string
}

type contextKey struct{}

func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

func UserFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(contextKey{}).(*User)
	return user
}

// RequireOrgRole checks that the context user holds an active membership in
// the organisation with one of the given roles.
func RequireOrgRole(ctx context.Context, st *store.Store, organisationID int64, roles ...string) error {
	user := UserFromContext(ctx)
	if user == nil {
		return ErrUnauthenticated
	}
	membership, err := st.GetActiveMembership(ctx, user.ID, organisationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrForbidden
		}
		return err
	}
	for _, role := range roles {
		if membership.Role == role {
			return nil
		}
	}
	return ErrForbidden
}
