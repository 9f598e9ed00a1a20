package clubhouse

import (
	goerrors "github.com/goliatone/go-errors"
)

// Text codes surfaced to the HTTP boundary so templates can map errors to
// user-facing copy without string matching.
const (
	TextCodeInvalidPhone      = "INVALID_PHONE"
	TextCodeRateLimited       = "RATE_LIMITED"
	TextCodeNoActiveCode      = "NO_ACTIVE_CODE"
	TextCodeWrongCode         = "WRONG_CODE"
	TextCodeTooManyAttempts   = "TOO_MANY_ATTEMPTS"
	TextCodeInviteNotFound    = "INVITE_NOT_FOUND"
	TextCodeInviteUsed        = "INVITE_ALREADY_USED"
	TextCodeInviteExpired     = "INVITE_EXPIRED"
	TextCodeMemberNotFound    = "MEMBER_NOT_FOUND"
	TextCodePhoneRegistered   = "PHONE_ALREADY_REGISTERED"
	TextCodeMembershipFull    = "MEMBERSHIP_FULL"
	TextCodeTokenExpired      = "TOKEN_EXPIRED"
	TextCodeTokenMalformed    = "TOKEN_MALFORMED"
	TextCodeBadSignature      = "BAD_SIGNATURE"
	TextCodeStaleSecret       = "STALE_SECRET"
	TextCodeMemberInactive    = "MEMBER_INACTIVE"
	TextCodeForbidden         = "FORBIDDEN"
	TextCodeSessionNotFound   = "SESSION_NOT_FOUND"
	TextCodeSessionDecode     = "SESSION_DECODE_ERROR"
	TextCodeCsrfFailure       = "CSRF_FAILURE"
	TextCodeInvalidTransition = "INVALID_MEMBER_STATE_TRANSITION"
)

// ErrInvalidPhone is returned when input cannot be canonicalized to a phone number
var ErrInvalidPhone = goerrors.New("not a valid phone number", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidPhone).
	WithCode(goerrors.CodeBadRequest)

// ErrRateLimited is returned when a phone requests codes too often
var ErrRateLimited = goerrors.New("too many code requests, try again later", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeRateLimited)

// ErrNoActiveCode is returned when no live code exists for the phone: none was
// sent, it expired, or it was already consumed.
var ErrNoActiveCode = goerrors.New("no active verification code for this phone", goerrors.CategoryAuth).
	WithTextCode(TextCodeNoActiveCode).
	WithCode(goerrors.CodeUnauthorized)

// ErrWrongCode is returned on a code mismatch; the attempt counter has
// already been decremented when this surfaces.
var ErrWrongCode = goerrors.New("the verification code is incorrect", goerrors.CategoryAuth).
	WithTextCode(TextCodeWrongCode).
	WithCode(goerrors.CodeUnauthorized)

// ErrTooManyAttempts is returned when the attempt budget is exhausted; the
// code is invalidated and a fresh send is required.
var ErrTooManyAttempts = goerrors.New("too many wrong attempts, request a new code", goerrors.CategoryAuth).
	WithTextCode(TextCodeTooManyAttempts).
	WithCode(goerrors.CodeUnauthorized)

// ErrInviteNotFound is returned for unknown invite codes
var ErrInviteNotFound = goerrors.New("invite code not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeInviteNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInviteAlreadyUsed is returned when the invite has been redeemed; kept
// distinct from not-found so the UI can say so.
var ErrInviteAlreadyUsed = goerrors.New("invite code has already been used", goerrors.CategoryConflict).
	WithTextCode(TextCodeInviteUsed).
	WithCode(goerrors.CodeConflict)

// ErrInviteExpired is returned when invite TTLs are enabled and the code is stale
var ErrInviteExpired = goerrors.New("invite code has expired", goerrors.CategoryConflict).
	WithTextCode(TextCodeInviteExpired).
	WithCode(goerrors.CodeConflict)

// ErrMemberNotFound is returned for phones with no member row; the UI
// directs these users to sign-up.
var ErrMemberNotFound = goerrors.New("member not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeMemberNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrPhoneAlreadyRegistered is returned when sign-up races or repeats an
// existing phone; backed by the unique constraint, not an application check.
var ErrPhoneAlreadyRegistered = goerrors.New("this phone number is already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodePhoneRegistered).
	WithCode(goerrors.CodeConflict)

// ErrMembershipFull is returned when the configured member cap is reached
var ErrMembershipFull = goerrors.New("the club has reached its member limit", goerrors.CategoryConflict).
	WithTextCode(TextCodeMembershipFull).
	WithCode(goerrors.CodeConflict)

// ErrTokenExpired is returned for sessions past their expiry
var ErrTokenExpired = goerrors.New("session has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned for tokens that do not decode
var ErrTokenMalformed = goerrors.New("session token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrBadSignature is returned when the signature does not verify under any
// known secret.
var ErrBadSignature = goerrors.New("session token signature is invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeBadSignature).
	WithCode(goerrors.CodeUnauthorized)

// ErrStaleSecret is returned when the token only verifies under a retired
// rotation key; the client must sign in again.
var ErrStaleSecret = goerrors.New("session was signed with a retired secret", goerrors.CategoryAuth).
	WithTextCode(TextCodeStaleSecret).
	WithCode(goerrors.CodeUnauthorized)

// ErrMemberInactive is returned when the session's member is suspended;
// checked on every request, not only at login.
var ErrMemberInactive = goerrors.New("this account is suspended", goerrors.CategoryAuth).
	WithTextCode(TextCodeMemberInactive).
	WithCode(goerrors.CodeUnauthorized)

// ErrForbidden is returned when a valid session lacks the required role
var ErrForbidden = goerrors.New("insufficient role for this action", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(goerrors.CodeForbidden)

// ErrUnableToFindSession is the error when the request has no session cookie
var ErrUnableToFindSession = goerrors.New("unable to find session", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionNotFound).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnableToDecodeSession is the error when the cookie does not decode to claims
var ErrUnableToDecodeSession = goerrors.New("unable to decode session", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionDecode).
	WithCode(goerrors.CodeUnauthorized)

// IsAuthError reports whether err belongs to the auth/authz categories that
// the HTTP layer converts into a redirect to the login page.
func IsAuthError(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Category == goerrors.CategoryAuth || richErr.Category == goerrors.CategoryAuthz
}
