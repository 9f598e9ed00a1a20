package clubhouse

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MemberRole is the member's role
type MemberRole = string

const (
	// RoleMember is a regular member (view, post, RSVP)
	RoleMember MemberRole = "member"
	// RoleModerator can additionally pin and remove content
	RoleModerator MemberRole = "moderator"
	// RoleAdmin can manage members, invites, and events
	RoleAdmin MemberRole = "admin"
)

// MemberStatus is the member's lifecycle status
type MemberStatus = string

const (
	// StatusActive members can sign in
	StatusActive MemberStatus = "active"
	// StatusSuspended members keep their row but cannot authenticate
	StatusSuspended MemberStatus = "suspended"
)

// Member is the durable identity record, keyed by canonical phone number.
// Members are never deleted; deactivation is a status flag.
type Member struct {
	bun.BaseModel `bun:"table:members,alias:mbr"`
	ID            uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Phone         string       `bun:"phone,notnull,unique" json:"phone,omitempty"`
	Name          string       `bun:"name,notnull" json:"name,omitempty"`
	Handle        string       `bun:"handle,unique" json:"handle,omitempty"`
	Role          MemberRole   `bun:"member_role,notnull" json:"member_role,omitempty"`
	Status        MemberStatus `bun:"status,notnull" json:"status,omitempty"`
	FirstLogin    bool         `bun:"first_login" json:"first_login,omitempty"`
	SuspendedAt   *time.Time   `bun:"suspended_at,nullzero" json:"suspended_at,omitempty"`
	CreatedAt     *time.Time   `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time   `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// EnsureStatus backfills the zero value so rows created before the status
// column behave as active.
func (m *Member) EnsureStatus() {
	if m.Status == "" {
		m.Status = StatusActive
	}
}

// IsActive reports whether the member may authenticate.
func (m *Member) IsActive() bool {
	m.EnsureStatus()
	return m.Status == StatusActive
}

// InviteCode is a single-use registration token like MOON-742. Status is
// derived: unused while RedeemedBy is nil, used after, expired past the
// configured TTL (when one applies).
type InviteCode struct {
	bun.BaseModel `bun:"table:invite_codes,alias:inv"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Code          string     `bun:"code,notnull,unique" json:"code,omitempty"`
	CreatedBy     *uuid.UUID `bun:"created_by,nullzero,type:uuid" json:"created_by,omitempty"`
	RedeemedBy    *uuid.UUID `bun:"redeemed_by,nullzero,type:uuid" json:"redeemed_by,omitempty"`
	RedeemedAt    *time.Time `bun:"redeemed_at,nullzero" json:"redeemed_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// IsRedeemed reports whether the invite has already been spent.
func (i *InviteCode) IsRedeemed() bool {
	return i.RedeemedBy != nil
}

// IsExpired reports whether the invite is past the given TTL. A zero TTL
// disables expiry.
func (i *InviteCode) IsExpired(ttl time.Duration, now time.Time) bool {
	if ttl <= 0 || i.CreatedAt == nil {
		return false
	}
	return now.After(i.CreatedAt.Add(ttl))
}

// VerificationCode tracks the single active one-time code for a phone.
// The phone is the primary key, so a new send replaces any prior code by
// construction. Only a bcrypt hash of the code is stored.
type VerificationCode struct {
	bun.BaseModel `bun:"table:verification_codes,alias:vrc"`
	Phone         string     `bun:"phone,pk" json:"phone,omitempty"`
	CodeHash      string     `bun:"code_hash,notnull" json:"-"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	AttemptsLeft  int        `bun:"attempts_left,notnull" json:"attempts_left,omitempty"`
	Consumed      bool       `bun:"consumed,notnull" json:"consumed,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// IsUsable reports whether the code can still be verified against.
func (v *VerificationCode) IsUsable(now time.Time) bool {
	return !v.Consumed && v.AttemptsLeft > 0 && now.Before(v.ExpiresAt)
}
