package clubhouse

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Invites is the invite ledger. Redemption is a conditional flip: the UPDATE
// only lands while redeemed_by is still NULL, so a code can be spent exactly
// once no matter how many sign-ups race for it.
type Invites interface {
	repository.Repository[*InviteCode]

	GetByCode(ctx context.Context, code string) (*InviteCode, error)
	GetByCodeTx(ctx context.Context, tx bun.IDB, code string) (*InviteCode, error)
	Create(ctx context.Context, record *InviteCode, criteria ...repository.InsertCriteria) (*InviteCode, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *InviteCode, criteria ...repository.InsertCriteria) (*InviteCode, error)
	Redeem(ctx context.Context, code string, memberID uuid.UUID) (bool, error)
	RedeemTx(ctx context.Context, tx bun.IDB, code string, memberID uuid.UUID) (bool, error)
	ListOpen(ctx context.Context) ([]*InviteCode, error)
}

type invites struct {
	repository.Repository[*InviteCode]
	db  *bun.DB
	now func() time.Time
}

var (
	_ Invites                            = (*invites)(nil)
	_ repository.Repository[*InviteCode] = (*invites)(nil)
)

func NewInvitesRepository(db *bun.DB) Invites {
	repo := repository.NewRepository[*InviteCode](db, repository.ModelHandlers[*InviteCode]{
		NewRecord: func() *InviteCode { return &InviteCode{} },
		GetID: func(inv *InviteCode) uuid.UUID {
			if inv == nil {
				return uuid.Nil
			}
			return inv.ID
		},
		SetID: func(inv *InviteCode, id uuid.UUID) {
			if inv != nil {
				inv.ID = id
			}
		},
		GetIdentifier: func() string {
			return "code"
		},
		GetIdentifierValue: func(inv *InviteCode) string {
			if inv == nil {
				return ""
			}
			return inv.Code
		},
	})

	return &invites{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
}

func (a *invites) GetByCode(ctx context.Context, code string) (*InviteCode, error) {
	return a.GetByCodeTx(ctx, a.db, code)
}

func (a *invites) GetByCodeTx(ctx context.Context, tx bun.IDB, code string) (*InviteCode, error) {
	record := &InviteCode{}
	err := tx.NewSelect().Model(record).
		Where("?TableAlias.code = ?", code).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if isNoRows(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"code": code,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *invites) Create(ctx context.Context, record *InviteCode, criteria ...repository.InsertCriteria) (*InviteCode, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *invites) CreateTx(ctx context.Context, tx bun.IDB, record *InviteCode, criteria ...repository.InsertCriteria) (*InviteCode, error) {
	prepareInviteDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *invites) Redeem(ctx context.Context, code string, memberID uuid.UUID) (bool, error) {
	return a.RedeemTx(ctx, a.db, code, memberID)
}

// RedeemTx reports whether this caller won the code. A false return with a
// nil error means someone else already spent it.
func (a *invites) RedeemTx(ctx context.Context, tx bun.IDB, code string, memberID uuid.UUID) (bool, error) {
	res, err := tx.NewUpdate().Model((*InviteCode)(nil)).
		Set("redeemed_by = ?", memberID).
		Set("redeemed_at = ?", a.now()).
		Where("code = ?", code).
		Where("redeemed_by IS NULL").
		Exec(ctx)

	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

func (a *invites) ListOpen(ctx context.Context) ([]*InviteCode, error) {
	var records []*InviteCode
	err := a.db.NewSelect().Model(&records).
		Where("redeemed_by IS NULL").
		Order("created_at DESC").
		Scan(ctx)

	if err != nil {
		return nil, err
	}

	return records, nil
}

func prepareInviteDefaults(record *InviteCode) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		if id, err := hashid.NewUUID(record.Code); err == nil {
			record.ID = id
		} else {
			record.ID = uuid.New()
		}
	}

	if record.CreatedAt == nil {
		now := time.Now()
		record.CreatedAt = &now
	}
}
