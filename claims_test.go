package clubhouse_test

import (
	"testing"
	"time"

	"github.com/castellan/clubhouse"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

func TestSessionClaimsAccessors(t *testing.T) {
	now := time.Now()
	claims := &clubhouse.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "sub-id",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		MID:        "member-id",
		MemberRole: "admin",
	}

	assert.Equal(t, "sub-id", claims.Subject())
	assert.Equal(t, "member-id", claims.MemberID())
	assert.Equal(t, "admin", claims.Role())
	assert.WithinDuration(t, now, claims.IssuedAt(), time.Second)
	assert.WithinDuration(t, now.Add(time.Hour), claims.Expires(), time.Second)
}

func TestSessionClaimsMemberIDFallsBackToSubject(t *testing.T) {
	claims := &clubhouse.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "sub-id"},
	}
	assert.Equal(t, "sub-id", claims.MemberID())
}

func TestSessionClaimsRoleChecks(t *testing.T) {
	moderator := &clubhouse.SessionClaims{MemberRole: "moderator"}

	assert.True(t, moderator.HasRole("moderator"))
	assert.False(t, moderator.HasRole("admin"))

	assert.True(t, moderator.IsAtLeast(clubhouse.RoleMember))
	assert.True(t, moderator.IsAtLeast(clubhouse.RoleModerator))
	assert.False(t, moderator.IsAtLeast(clubhouse.RoleAdmin))

	// A role outside the hierarchy fails every check.
	stranger := &clubhouse.SessionClaims{MemberRole: "visitor"}
	assert.False(t, stranger.IsAtLeast(clubhouse.RoleMember))
}

func TestSessionClaimsZeroTimes(t *testing.T) {
	claims := &clubhouse.SessionClaims{}
	assert.True(t, claims.Expires().IsZero())
	assert.True(t, claims.IssuedAt().IsZero())
}
