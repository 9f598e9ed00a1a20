package clubhouse

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// TokenService mints and validates signed session tokens.
type TokenService interface {
	Generate(member *Member) (string, error)
	SignClaims(claims *SessionClaims) (string, error)
	Validate(tokenString string) (AuthClaims, error)
}

// TokenServiceImpl signs session tokens with an HMAC secret. Retired secrets
// still verify so a secret rotation does not hard-kill every live session;
// tokens under a retired secret surface ErrStaleSecret so callers can force a
// fresh sign-in.
type TokenServiceImpl struct {
	signingKey  []byte
	retiredKeys [][]byte
	ttl         time.Duration
	issuer      string
	logger      Logger
}

var _ TokenService = (*TokenServiceImpl)(nil)

// NewTokenService creates a new TokenService instance
func NewTokenService(cfg Config, logger Logger) TokenService {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenServiceImpl{
		signingKey:  []byte(cfg.GetSigningKey()),
		retiredKeys: retiredKeyBytes(cfg.GetRetiredSigningKeys()),
		ttl:         cfg.GetSessionTTL(),
		issuer:      cfg.GetIssuer(),
		logger:      logger,
	}
}

// Generate creates a session token for the member
func (ts *TokenServiceImpl) Generate(member *Member) (string, error) {
	if member == nil {
		return "", goerrors.New("member must not be nil", goerrors.CategoryInternal)
	}

	now := time.Now()
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   member.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.ttl)),
		},
		MID:        member.ID.String(),
		MemberRole: string(member.Role),
	}

	ensureTokenID(&claims.RegisteredClaims)

	return ts.SignClaims(claims)
}

// SignClaims signs arbitrary session claims using the configured signing key.
func (ts *TokenServiceImpl) SignClaims(claims *SessionClaims) (string, error) {
	if claims == nil {
		return "", goerrors.New("claims must not be nil", goerrors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign session token")
	}

	return signedString, nil
}

// Validate parses and validates a token string, returning structured claims
func (ts *TokenServiceImpl) Validate(tokenString string) (AuthClaims, error) {
	claims, err := ts.parseWithKey(tokenString, ts.signingKey)
	if err == nil {
		return claims, nil
	}

	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrTokenExpired
	}

	if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		// A signature that checks out under a retired secret is a stale
		// session, not a forgery.
		for _, key := range ts.retiredKeys {
			if _, rerr := ts.parseWithKey(tokenString, key); rerr == nil {
				return nil, ErrStaleSecret
			}
		}
		return nil, ErrBadSignature
	}

	return nil, goerrors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
		WithTextCode(ErrTokenMalformed.TextCode)
}

func (ts *TokenServiceImpl) parseWithKey(tokenString string, key []byte) (*SessionClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 1)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("token validate encountered unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	}, parserOptions...)

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid {
		return claims, nil
	}

	ts.logger.Error("token validate could not decode or validate claims")
	return nil, ErrUnableToDecodeSession
}

func retiredKeyBytes(keys []string) [][]byte {
	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			out = append(out, []byte(k))
		}
	}
	return out
}
