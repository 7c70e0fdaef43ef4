// Package auth decides who may moderate reviews and administer clinics.
package auth

import (
	"context"
	"strings"

	"github.com/samber/lo"

	apperrors "github.com/mabgcm/turkiyedental2-sub001/pkg/errors"
	"github.com/mabgcm/turkiyedental2-sub001/pkg/middleware"
)

// Authorizer holds the fixed administrator allow-list. Entries are user ids
// or email addresses; emails match case-insensitively.
type Authorizer struct {
	admins map[string]struct{}
}

// NewAuthorizer builds an Authorizer from allow-list entries.
func NewAuthorizer(allowlist []string) *Authorizer {
	entries := lo.FilterMap(allowlist, func(s string, _ int) (string, bool) {
		s = strings.ToLower(strings.TrimSpace(s))
		return s, s != ""
	})
	return &Authorizer{admins: lo.SliceToMap(entries, func(s string) (string, struct{}) {
		return s, struct{}{}
	})}
}

// IsAdmin reports whether id is on the allow-list.
func (a *Authorizer) IsAdmin(id middleware.Identity) bool {
	if id.UserID == "" {
		return false
	}
	if _, ok := a.admins[strings.ToLower(id.UserID)]; ok {
		return true
	}
	if id.Email == "" {
		return false
	}
	_, ok := a.admins[strings.ToLower(id.Email)]
	return ok
}

// RequireAdmin returns the caller when it is an administrator. Anonymous
// callers get ErrUnauthorized and everyone else ErrForbidden.
func (a *Authorizer) RequireAdmin(ctx context.Context) (middleware.Identity, error) {
	id, ok := middleware.IdentityFromContext(ctx)
	if !ok || id.UserID == "" {
		return middleware.Identity{}, apperrors.Unauthorized("authentication required")
	}
	if !a.IsAdmin(id) {
		return id, apperrors.Forbidden("administrator access required")
	}
	return id, nil
}

// RequireUser returns the authenticated caller.
func (a *Authorizer) RequireUser(ctx context.Context) (middleware.Identity, error) {
	id, ok := middleware.IdentityFromContext(ctx)
	if !ok || id.UserID == "" {
		return middleware.Identity{}, apperrors.Unauthorized("authentication required")
	}
	return id, nil
}

// Size returns the number of allow-list entries.
func (a *Authorizer) Size() int {
	return len(a.admins)
}
