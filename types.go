package clubhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Session holds attributes that are part of an auth session
type Session interface {
	GetMemberID() string
	GetMemberUUID() (uuid.UUID, error)
	GetRole() string
	GetIssuer() string
	GetIssuedAt() *time.Time
	GetExpiration() *time.Time
}

// Authenticator glues codes, invites, members, and sessions into the two
// user flows plus the identity queries the rest of the app consumes.
type Authenticator interface {
	StartSignIn(ctx context.Context, phone string) error
	CompleteSignIn(ctx context.Context, phone, code string) (string, error)
	StartSignUp(ctx context.Context, inviteCode string) (*InviteCode, error)
	RequestSignUpCode(ctx context.Context, inviteCode, phone string) error
	CompleteSignUp(ctx context.Context, req SignUpRequest) (string, error)
	SessionFromToken(token string) (Session, error)
	MemberFromSession(ctx context.Context, session Session) (*Member, error)
	RequireRole(ctx context.Context, session Session, role MemberRole) (*Member, error)
}

// SignUpRequest carries everything CompleteSignUp needs. Code is the SMS
// verification code, not the invite.
type SignUpRequest struct {
	InviteCode string
	Phone      string
	Name       string
	Code       string
}

// Dispatcher sends an SMS to a canonical phone number. Send errors are
// logged by callers, never propagated to the user.
type Dispatcher interface {
	Send(ctx context.Context, phone, message string) error
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetRetiredSigningKeys() []string
	GetIssuer() string
	GetContextKey() string
	GetCookieName() string
	GetSessionTTL() time.Duration
	GetCodeTTL() time.Duration
	GetCodeAttempts() int
	GetCodeRequestMax() int
	GetCodeRequestWindow() time.Duration
	GetInviteTTL() time.Duration
	GetMaxMembers() int
	GetDefaultRegion() string
	GetSiteName() string
	IsProduction() bool
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] CLUBHOUSE "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] CLUBHOUSE "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] CLUBHOUSE "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] CLUBHOUSE "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
