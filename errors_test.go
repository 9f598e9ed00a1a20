package clubhouse_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/castellan/clubhouse"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
)

func TestIsAuthError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"expired token", clubhouse.ErrTokenExpired, true},
		{"wrong code", clubhouse.ErrWrongCode, true},
		{"suspended member", clubhouse.ErrMemberInactive, true},
		{"forbidden is authz", clubhouse.ErrForbidden, true},
		{"missing session", clubhouse.ErrUnableToFindSession, true},
		{"invite conflict is not auth", clubhouse.ErrInviteAlreadyUsed, false},
		{"member not found is not auth", clubhouse.ErrMemberNotFound, false},
		{"rate limit is not auth", clubhouse.ErrRateLimited, false},
		{"plain error is not auth", errors.New("boom"), false},
		{"nil is not auth", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, clubhouse.IsAuthError(tt.err))
		})
	}
}

func TestIsAuthErrorSeesThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", clubhouse.ErrTokenExpired)
	assert.True(t, clubhouse.IsAuthError(wrapped))
}

func TestErrorTextCodes(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{clubhouse.ErrInvalidPhone, clubhouse.TextCodeInvalidPhone},
		{clubhouse.ErrWrongCode, clubhouse.TextCodeWrongCode},
		{clubhouse.ErrTooManyAttempts, clubhouse.TextCodeTooManyAttempts},
		{clubhouse.ErrInviteNotFound, clubhouse.TextCodeInviteNotFound},
		{clubhouse.ErrInviteAlreadyUsed, clubhouse.TextCodeInviteUsed},
		{clubhouse.ErrPhoneAlreadyRegistered, clubhouse.TextCodePhoneRegistered},
		{clubhouse.ErrStaleSecret, clubhouse.TextCodeStaleSecret},
		{clubhouse.ErrForbidden, clubhouse.TextCodeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			var richErr *goerrors.Error
			assert.True(t, goerrors.As(tt.err, &richErr))
			assert.Equal(t, tt.code, richErr.TextCode)
		})
	}
}
