package clubhouse

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type RegisterMemberMessage struct {
	InviteCode string `json:"invite_code"`
	Phone      string `json:"phone"`
	Name       string `json:"name"`

	// set by the handler on success
	Member *Member `json:"-"`
}

func (e RegisterMemberMessage) Type() string { return "member.register" }

// RegisterMemberHandler creates a member and spends the invite that admitted
// them in a single transaction: either both land or neither does.
type RegisterMemberHandler struct {
	repo    RepositoryManager
	ledger  InviteLedger
	maxSize int
}

func NewRegisterMemberHandler(cfg Config, repo RepositoryManager, ledger InviteLedger) *RegisterMemberHandler {
	return &RegisterMemberHandler{
		repo:    repo,
		ledger:  ledger,
		maxSize: cfg.GetMaxMembers(),
	}
}

func (h *RegisterMemberHandler) Execute(ctx context.Context, event *RegisterMemberMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during member registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterMemberHandler) execute(ctx context.Context, event *RegisterMemberMessage) error {
	member := &Member{}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if h.maxSize > 0 {
			count, err := h.repo.Members().CountActiveTx(ctx, tx)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to count members")
			}
			if count >= h.maxSize {
				return ErrMembershipFull
			}
		}

		handle, err := h.repo.Members().ReserveHandle(ctx, event.Name)
		if err != nil {
			return err
		}

		member.Phone = event.Phone
		member.Name = event.Name
		member.Handle = handle
		member.Role = RoleMember
		member.FirstLogin = true

		if member, err = h.repo.Members().CreateTx(ctx, tx, member); err != nil {
			if errors.Is(err, ErrPhoneAlreadyRegistered) {
				return err
			}
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create member")
		}

		// Spend the invite after the insert so a duplicate phone never burns
		// a good code. A lost race here rolls the member back too.
		if err := h.ledger.Spend(ctx, tx, event.InviteCode, member.ID); err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "member registration transaction failed")
	}

	event.Member = member
	return nil
}
