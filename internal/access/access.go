// Package access holds the caller identity and the single ownership predicate
// every service uses to scope reads and writes.
package access

import (
	"context"
	"errors"
)

type Role string

const (
	RoleAdmin       Role = "admin"
	RoleSalesperson Role = "salesperson"
)

var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrInvalidRole     = errors.New("invalid role")
	ErrForbidden       = errors.New("access denied")
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSalesperson:
		return true
	}
	return false
}

func ParseRole(value string) (Role, error) {
	r := Role(value)
	if !r.Valid() {
		return "", ErrInvalidRole
	}
	return r, nil
}

// Identity is the resolved caller of a request.
type Identity struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
}

func (id Identity) IsAdmin() bool {
	return id.Role == RoleAdmin
}

// Authorize checks that a caller is present and carries a known role.
func Authorize(id *Identity) error {
	if id == nil || id.UserID == "" {
		return ErrUnauthenticated
	}
	if !id.Role.Valid() {
		return ErrInvalidRole
	}
	return nil
}

// CanAccess reports whether id may read or mutate a record owned by owner.
func CanAccess(id Identity, owner string) bool {
	switch id.Role {
	case RoleAdmin:
		return true
	case RoleSalesperson:
		return id.UserID != "" && owner == id.UserID
	default:
		return false
	}
}

func RequireOwner(id Identity, owner string) error {
	if err := Authorize(&id); err != nil {
		return err
	}
	if !CanAccess(id, owner) {
		return ErrForbidden
	}
	return nil
}

func RequireAdmin(id Identity) error {
	if err := Authorize(&id); err != nil {
		return err
	}
	if !id.IsAdmin() {
		return ErrForbidden
	}
	return nil
}

// OwnerScope returns the owner a list query must be restricted to, or "" when
// the caller may see every owner's records.
func OwnerScope(id Identity) (string, error) {
	if err := Authorize(&id); err != nil {
		return "", err
	}
	if id.IsAdmin() {
		return "", nil
	}
	return id.UserID, nil
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func FromContext(ctx context.Context) (Identity, error) {
	if v, ok := ctx.Value(identityKey{}).(Identity); ok {
		return v, nil
	}
	return Identity{}, ErrUnauthenticated
}
