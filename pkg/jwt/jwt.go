package jwt

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrNoSecret     = errors.New("jwt secret is empty")
)

// Role is the access level carried by a token
type Role string

const (
	// RoleAdmin may replace, reset and reconcile the collection
	RoleAdmin Role = "admin"
	// RoleViewer may only read admin reports
	RoleViewer Role = "viewer"
)

// Claims are the JWT claims issued to maintainers
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// HasRole reports whether the token grants role. Admin implies every role.
func (c *Claims) HasRole(role Role) bool {
	return c.Role == role || c.Role == RoleAdmin
}
