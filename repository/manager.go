package repository

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/castellan/clubhouse"
	"github.com/uptrace/bun"
)

type mngr struct {
	db      *bun.DB
	members clubhouse.Members
	invites clubhouse.Invites
	codes   clubhouse.VerificationCodes
}

func NewRepositoryManager(db *bun.DB) clubhouse.RepositoryManager {
	return &mngr{
		db:      db,
		members: clubhouse.NewMembersRepository(db),
		invites: clubhouse.NewInvitesRepository(db),
		codes:   clubhouse.NewVerificationCodes(db),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository manager needs a database handle")
	}

	if m.members == nil {
		return errors.New("repository members should be initialized")
	}

	if m.invites == nil {
		return errors.New("repository invites should be initialized")
	}

	if m.codes == nil {
		return errors.New("repository verification codes should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Members() clubhouse.Members {
	return m.members
}

func (m mngr) Invites() clubhouse.Invites {
	return m.invites
}

func (m mngr) VerificationCodes() clubhouse.VerificationCodes {
	return m.codes
}
