package clubhouse

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// VerificationCodes persists one pending code per phone. The table is keyed
// by phone so issuing a new code replaces the previous one, and consumption
// happens through conditional updates checked by rows affected.
type VerificationCodes interface {
	Put(ctx context.Context, phone, codeHash string, ttl time.Duration, attempts int) error
	Get(ctx context.Context, phone string) (*VerificationCode, error)
	Consume(ctx context.Context, phone string) (bool, error)
	SpendAttempt(ctx context.Context, phone string) (int, error)
	Invalidate(ctx context.Context, phone string) error
	PurgeExpired(ctx context.Context, cutoff time.Time) (int, error)
}

type verificationCodes struct {
	db  *bun.DB
	now func() time.Time
}

var _ VerificationCodes = (*verificationCodes)(nil)

func NewVerificationCodes(db *bun.DB) VerificationCodes {
	return &verificationCodes{
		db:  db,
		now: time.Now,
	}
}

// Put issues a fresh code for the phone, displacing any earlier one.
func (s *verificationCodes) Put(ctx context.Context, phone, codeHash string, ttl time.Duration, attempts int) error {
	now := s.now()
	record := &VerificationCode{
		Phone:        phone,
		CodeHash:     codeHash,
		ExpiresAt:    now.Add(ttl),
		AttemptsLeft: attempts,
		Consumed:     false,
		CreatedAt:    &now,
	}

	_, err := s.db.NewInsert().Model(record).
		On("CONFLICT (phone) DO UPDATE").
		Set("code_hash = EXCLUDED.code_hash").
		Set("expires_at = EXCLUDED.expires_at").
		Set("attempts_left = EXCLUDED.attempts_left").
		Set("consumed = EXCLUDED.consumed").
		Set("created_at = EXCLUDED.created_at").
		Exec(ctx)

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store verification code")
	}

	return nil
}

func (s *verificationCodes) Get(ctx context.Context, phone string) (*VerificationCode, error) {
	record := &VerificationCode{}
	err := s.db.NewSelect().Model(record).
		Where("?TableAlias.phone = ?", phone).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if isNoRows(err) {
			return nil, ErrNoActiveCode
		}
		return nil, err
	}

	return record, nil
}

// Consume flips the code to consumed if, and only if, it is still live. The
// returned bool reports whether this call won the flip, so two concurrent
// verifications of the same code cannot both succeed.
func (s *verificationCodes) Consume(ctx context.Context, phone string) (bool, error) {
	res, err := s.db.NewUpdate().Model((*VerificationCode)(nil)).
		Set("consumed = ?", true).
		Where("phone = ?", phone).
		Where("consumed = ?", false).
		Where("expires_at > ?", s.now()).
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

// SpendAttempt burns one guess and returns how many remain. Returns
// ErrNoActiveCode when there is nothing live to spend against.
func (s *verificationCodes) SpendAttempt(ctx context.Context, phone string) (int, error) {
	res, err := s.db.NewUpdate().Model((*VerificationCode)(nil)).
		Set("attempts_left = attempts_left - 1").
		Where("phone = ?", phone).
		Where("consumed = ?", false).
		Where("attempts_left > ?", 0).
		Exec(ctx)

	if err != nil {
		return 0, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if affected == 0 {
		return 0, ErrNoActiveCode
	}

	record := &VerificationCode{}
	err = s.db.NewSelect().Model(record).
		Column("attempts_left").
		Where("?TableAlias.phone = ?", phone).
		Scan(ctx)
	if err != nil {
		return 0, err
	}

	return record.AttemptsLeft, nil
}

func (s *verificationCodes) Invalidate(ctx context.Context, phone string) error {
	_, err := s.db.NewDelete().Model((*VerificationCode)(nil)).
		Where("phone = ?", phone).
		Exec(ctx)
	return err
}

func (s *verificationCodes) PurgeExpired(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.NewDelete().Model((*VerificationCode)(nil)).
		Where("expires_at <= ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	return int(affected), nil
}
