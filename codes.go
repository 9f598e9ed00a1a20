package clubhouse

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// CodeIssuer hands out one-time verification codes over SMS and checks them
// back in. A phone has at most one live code at a time; issuing again simply
// displaces the old one.
type CodeIssuer interface {
	Request(ctx context.Context, rawPhone string) error
	Check(ctx context.Context, rawPhone, code string) (string, error)
}

type codeIssuer struct {
	codes      VerificationCodes
	dispatcher Dispatcher
	limiter    *RateLimiter
	logger     Logger

	ttl      time.Duration
	attempts int
	siteName string
	region   string
	generate func() (string, error)
}

var _ CodeIssuer = (*codeIssuer)(nil)

func NewCodeIssuer(cfg Config, codes VerificationCodes, dispatcher Dispatcher) CodeIssuer {
	return &codeIssuer{
		codes:      codes,
		dispatcher: dispatcher,
		limiter:    NewRateLimiter(cfg.GetCodeRequestMax(), cfg.GetCodeRequestWindow()),
		logger:     defLogger{},
		ttl:        cfg.GetCodeTTL(),
		attempts:   cfg.GetCodeAttempts(),
		siteName:   cfg.GetSiteName(),
		region:     cfg.GetDefaultRegion(),
		generate:   generateCode,
	}
}

// Request canonicalizes the phone, mints a fresh code, stores its hash, and
// dispatches the cleartext over SMS. The cleartext never touches storage.
func (c *codeIssuer) Request(ctx context.Context, rawPhone string) error {
	phone, err := CanonicalPhoneInRegion(rawPhone, c.region)
	if err != nil {
		return err
	}

	if !c.limiter.Allow(phone) {
		c.logger.Warn("code request rate limited: %s", phone)
		return ErrRateLimited
	}

	code, err := c.generate()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate verification code")
	}

	hash, err := HashCode(code)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash verification code")
	}

	if err := c.codes.Put(ctx, phone, hash, c.ttl, c.attempts); err != nil {
		return err
	}

	message := fmt.Sprintf("Your %s code is %s. It expires in %d minutes.",
		c.siteName, code, int(c.ttl.Minutes()))

	// Dispatch failure is non-fatal: the code stays live and the member can
	// simply ask for a resend.
	if err := c.dispatcher.Send(ctx, phone, message); err != nil {
		c.logger.Error("verification SMS dispatch failed for %s: %s", phone, err)
	}

	return nil
}

// Check verifies the code against the stored hash and consumes it on match.
// On success it returns the canonical phone so the caller can look up or
// create the member under the same key the code was issued against.
func (c *codeIssuer) Check(ctx context.Context, rawPhone, code string) (string, error) {
	phone, err := CanonicalPhoneInRegion(rawPhone, c.region)
	if err != nil {
		return "", err
	}

	record, err := c.codes.Get(ctx, phone)
	if err != nil {
		return "", err
	}

	if !record.IsUsable(time.Now()) {
		return "", ErrNoActiveCode
	}

	if err := CompareCodeAndHash(code, record.CodeHash); err != nil {
		if !errors.Is(err, ErrWrongCode) {
			return "", err
		}

		remaining, serr := c.codes.SpendAttempt(ctx, phone)
		if serr != nil {
			return "", serr
		}

		if remaining <= 0 {
			if derr := c.codes.Invalidate(ctx, phone); derr != nil {
				c.logger.Error("failed to invalidate exhausted code: %s", derr)
			}
			return "", ErrTooManyAttempts
		}

		return "", ErrWrongCode
	}

	ok, err := c.codes.Consume(ctx, phone)
	if err != nil {
		return "", err
	}

	if !ok {
		// Lost the flip to a concurrent verification, or the code expired
		// between the read and the update.
		return "", ErrNoActiveCode
	}

	c.limiter.Reset(phone)

	return phone, nil
}

// generateCode returns a uniformly random six digit code, zero padded.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
