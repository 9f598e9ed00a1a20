package clubhouse

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AuthClaims is the structured view of a session token's payload.
type AuthClaims interface {
	Subject() string
	MemberID() string
	Role() string
	HasRole(role string) bool
	IsAtLeast(minRole MemberRole) bool
	Expires() time.Time
	IssuedAt() time.Time
}

// SessionClaims is the concrete claims payload carried in every token.
type SessionClaims struct {
	jwt.RegisteredClaims
	MID        string `json:"mid,omitempty"`
	MemberRole string `json:"role,omitempty"`
}

var _ AuthClaims = (*SessionClaims)(nil)

func (c *SessionClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// MemberID returns the member id, falling back to the subject claim.
func (c *SessionClaims) MemberID() string {
	if c.MID != "" {
		return c.MID
	}
	return c.Subject()
}

func (c *SessionClaims) Role() string {
	return c.MemberRole
}

func (c *SessionClaims) HasRole(role string) bool {
	return c.MemberRole == role
}

func (c *SessionClaims) IsAtLeast(minRole MemberRole) bool {
	return RoleIsAtLeast(MemberRole(c.MemberRole), minRole)
}

func (c *SessionClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

func (c *SessionClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
