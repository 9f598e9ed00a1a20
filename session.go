package clubhouse

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ Session = &SessionObject{}

// SessionObject is the decoded, read-only view of a session token handed to
// request handlers and templates.
type SessionObject struct {
	MemberID       string     `json:"member_id,omitempty"`
	Role           string     `json:"role,omitempty"`
	Issuer         string     `json:"issuer,omitempty"`
	IssuedAt       *time.Time `json:"issued_at,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
}

func (s *SessionObject) GetMemberID() string {
	return s.MemberID
}

func (s *SessionObject) GetMemberUUID() (uuid.UUID, error) {
	return uuid.Parse(s.MemberID)
}

func (s *SessionObject) GetRole() string {
	return s.Role
}

func (s *SessionObject) GetIssuer() string {
	return s.Issuer
}

func (s *SessionObject) GetIssuedAt() *time.Time {
	return s.IssuedAt
}

func (s *SessionObject) GetExpiration() *time.Time {
	return s.ExpirationDate
}

// IsAtLeast checks if the session's role is at least the minimum required role
func (s *SessionObject) IsAtLeast(minRole MemberRole) bool {
	return RoleIsAtLeast(MemberRole(s.Role), minRole)
}

func (s SessionObject) String() string {
	issuedAt := "<nil>"
	if s.IssuedAt != nil {
		issuedAt = s.IssuedAt.Format(time.RFC1123)
	}
	return fmt.Sprintf(
		"member=%s role=%s iss=%s iat=%s",
		s.MemberID,
		s.Role,
		s.Issuer,
		issuedAt,
	)
}

// sessionFromClaims builds the handler-facing session view from validated
// token claims.
func sessionFromClaims(claims AuthClaims) (*SessionObject, error) {
	if claims == nil {
		return nil, ErrUnableToDecodeSession
	}

	issuedAt := claims.IssuedAt()
	expiresAt := claims.Expires()

	issuer := ""
	if sc, ok := claims.(*SessionClaims); ok {
		issuer = sc.RegisteredClaims.Issuer
	}

	return &SessionObject{
		MemberID:       claims.MemberID(),
		Role:           claims.Role(),
		Issuer:         issuer,
		IssuedAt:       &issuedAt,
		ExpirationDate: &expiresAt,
	}, nil
}
