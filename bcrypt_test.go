package clubhouse_test

import (
	"testing"

	"github.com/castellan/clubhouse"
	"github.com/stretchr/testify/assert"
)

func TestHashCode(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr bool
	}{
		{
			name: "six digit code",
			code: "042317",
		},
		{
			name:    "empty code",
			code:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := clubhouse.HashCode(tt.code)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.NotEmpty(t, hash)
			assert.NotEqual(t, tt.code, hash)

			assert.NoError(t, clubhouse.CompareCodeAndHash(tt.code, hash))
		})
	}
}

func TestCompareCodeAndHash(t *testing.T) {
	code := "042317"
	hash, err := clubhouse.HashCode(code)
	assert.NoError(t, err)

	tests := []struct {
		name    string
		code    string
		hash    string
		wantErr error
	}{
		{
			name: "matching code",
			code: code,
			hash: hash,
		},
		{
			name:    "wrong code",
			code:    "042318",
			hash:    hash,
			wantErr: clubhouse.ErrWrongCode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := clubhouse.CompareCodeAndHash(tt.code, tt.hash)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	t.Run("invalid hash", func(t *testing.T) {
		err := clubhouse.CompareCodeAndHash(code, "not-a-bcrypt-hash")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, clubhouse.ErrWrongCode)
	})
}
