package clubhouse

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// inviteWords is the vocabulary for the human readable half of an invite
// code. Codes read like MOON-742: easy to say over the phone, hard to guess
// in bulk.
var inviteWords = []string{
	"MOON", "STAR", "TREE", "BIRD", "FISH",
	"BEAR", "WOLF", "FROG", "LAKE", "RAIN",
}

// InviteLedger mints and spends invite codes.
type InviteLedger interface {
	Issue(ctx context.Context, createdBy uuid.UUID) (*InviteCode, error)
	Spend(ctx context.Context, tx bun.IDB, code string, memberID uuid.UUID) error
	Peek(ctx context.Context, code string) (*InviteCode, error)
	Open(ctx context.Context) ([]*InviteCode, error)
}

type inviteLedger struct {
	invites Invites
	logger  Logger
	ttl     time.Duration
}

var _ InviteLedger = (*inviteLedger)(nil)

func NewInviteLedger(cfg Config, invites Invites) InviteLedger {
	return &inviteLedger{
		invites: invites,
		logger:  defLogger{},
		ttl:     cfg.GetInviteTTL(),
	}
}

// Issue mints a fresh single-use code, retrying on the rare collision with
// an existing one.
func (l *inviteLedger) Issue(ctx context.Context, createdBy uuid.UUID) (*InviteCode, error) {
	for attempt := 0; attempt < 5; attempt++ {
		code, err := generateInviteCode()
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate invite code")
		}

		record := &InviteCode{
			Code:      code,
			CreatedBy: &createdBy,
		}

		created, err := l.invites.Create(ctx, record)
		if err != nil {
			if isUniqueViolation(err) {
				continue
			}
			return nil, err
		}

		return created, nil
	}

	return nil, goerrors.New("exhausted invite code attempts", goerrors.CategoryInternal).
		WithTextCode("INVITE_SPACE_EXHAUSTED")
}

// Peek reads a code without spending it, mapping its state to the error the
// caller should surface.
func (l *inviteLedger) Peek(ctx context.Context, code string) (*InviteCode, error) {
	record, err := l.invites.GetByCode(ctx, code)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrInviteNotFound
		}
		return nil, err
	}

	if record.IsRedeemed() {
		return nil, ErrInviteAlreadyUsed
	}

	if record.IsExpired(l.ttl, time.Now()) {
		return nil, ErrInviteExpired
	}

	return record, nil
}

// Spend flips the code to redeemed inside the caller's transaction. Exactly
// one caller wins; the rest see ErrInviteAlreadyUsed (or ErrInviteNotFound
// when the code never existed).
func (l *inviteLedger) Spend(ctx context.Context, tx bun.IDB, code string, memberID uuid.UUID) error {
	record, err := l.invites.GetByCodeTx(ctx, tx, code)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrInviteNotFound
		}
		return err
	}

	if record.IsExpired(l.ttl, time.Now()) {
		return ErrInviteExpired
	}

	won, err := l.invites.RedeemTx(ctx, tx, code, memberID)
	if err != nil {
		return err
	}

	if !won {
		return ErrInviteAlreadyUsed
	}

	return nil
}

func (l *inviteLedger) Open(ctx context.Context) ([]*InviteCode, error) {
	return l.invites.ListOpen(ctx)
}

func generateInviteCode() (string, error) {
	w, err := rand.Int(rand.Reader, big.NewInt(int64(len(inviteWords))))
	if err != nil {
		return "", err
	}

	n, err := rand.Int(rand.Reader, big.NewInt(900))
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%d", inviteWords[w.Int64()], n.Int64()+100), nil
}
