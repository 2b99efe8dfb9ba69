package model

import "github.com/golang-jwt/jwt/v5"

const (
	RolePlayer    = "player"
	RoleAdmin     = "admin"
	RoleSuperUser = "super-user"
)

// PlayerClaims are JWT claims carried by every player and admin token
type PlayerClaims struct {
	PlayerID string `json:"playerId"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the token may perform administrative actions
func (c *PlayerClaims) IsAdmin() bool {
	return c.Role == RoleAdmin || c.Role == RoleSuperUser
}
