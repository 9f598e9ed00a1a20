package clubhouse

import (
	"errors"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRouterSession(t *testing.T) {
	t.Run("claims in context become a session", func(t *testing.T) {
		ctx := router.NewMockContext()
		ctx.LocalsMock["session"] = &SessionClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject: "member-1",
				Issuer:  "clubhouse",
			},
			MID:        "member-1",
			MemberRole: string(RoleModerator),
		}

		session, err := GetRouterSession(ctx, "session")
		require.NoError(t, err)
		assert.Equal(t, "member-1", session.GetMemberID())
		assert.Equal(t, string(RoleModerator), session.GetRole())
		assert.Equal(t, "clubhouse", session.GetIssuer())
	})

	t.Run("nothing in context", func(t *testing.T) {
		ctx := router.NewMockContext()

		session, err := GetRouterSession(ctx, "session")
		assert.Nil(t, session)
		assert.ErrorIs(t, err, ErrUnableToFindSession)
	})

	t.Run("wrong type in context", func(t *testing.T) {
		ctx := router.NewMockContext()
		ctx.LocalsMock["session"] = "not-claims"

		session, err := GetRouterSession(ctx, "session")
		assert.Nil(t, session)
		assert.ErrorIs(t, err, ErrUnableToDecodeSession)
	})
}

func TestSendCodePayloadValidate(t *testing.T) {
	tests := []struct {
		name    string
		payload SendCodePayload
		wantErr bool
	}{
		{"valid phone", SendCodePayload{Phone: "+1 (555) 301-0001"}, false},
		{"empty phone", SendCodePayload{}, true},
		{"garbage phone", SendCodePayload{Phone: "not-a-phone"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVerifyPayloadValidate(t *testing.T) {
	tests := []struct {
		name    string
		payload VerifyPayload
		wantErr bool
	}{
		{"valid", VerifyPayload{Phone: "+15553010001", Code: "123456"}, false},
		{"missing code", VerifyPayload{Phone: "+15553010001"}, true},
		{"code too short", VerifyPayload{Phone: "+15553010001", Code: "123"}, true},
		{"code not digits", VerifyPayload{Phone: "+15553010001", Code: "12345a"}, true},
		{"missing phone", VerifyPayload{Code: "123456"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestJoinPayloadValidate(t *testing.T) {
	tests := []struct {
		name    string
		payload JoinPayload
		wantErr bool
	}{
		{"valid", JoinPayload{Invite: "MOON-742", Phone: "+15553010001"}, false},
		{"lowercase invite", JoinPayload{Invite: "moon-742", Phone: "+15553010001"}, true},
		{"wrong shape invite", JoinPayload{Invite: "MOON742", Phone: "+15553010001"}, true},
		{"missing invite", JoinPayload{Phone: "+15553010001"}, true},
		{"missing phone", JoinPayload{Invite: "MOON-742"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegisterPayloadValidate(t *testing.T) {
	valid := RegisterPayload{
		Invite: "MOON-742",
		Phone:  "+15553010001",
		Name:   "June Park",
		Code:   "123456",
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid.Validate())
	})

	t.Run("missing name", func(t *testing.T) {
		p := valid
		p.Name = ""
		assert.Error(t, p.Validate())
	})

	t.Run("name too long", func(t *testing.T) {
		p := valid
		for len(p.Name) <= 80 {
			p.Name += "x"
		}
		assert.Error(t, p.Validate())
	})

	t.Run("bad code", func(t *testing.T) {
		p := valid
		p.Code = "12"
		assert.Error(t, p.Validate())
	})
}

func TestFormatValidationErrorToMap(t *testing.T) {
	t.Run("field errors keep their field names", func(t *testing.T) {
		err := JoinPayload{Invite: "bad", Phone: ""}.Validate()
		require.Error(t, err)

		var verrs validation.Errors
		require.ErrorAs(t, err, &verrs)

		out := FormatValidationErrorToMap(err)
		assert.Contains(t, out, "invite")
		assert.Contains(t, out, "phone")
	})

	t.Run("nil error", func(t *testing.T) {
		assert.Empty(t, FormatValidationErrorToMap(nil))
	})

	t.Run("plain error lands under form", func(t *testing.T) {
		out := FormatValidationErrorToMap(errors.New("boom"))
		assert.Equal(t, "boom", out["form"])
	})
}

func TestUserFacingMessage(t *testing.T) {
	t.Run("rich errors surface their message", func(t *testing.T) {
		assert.Equal(t, ErrWrongCode.Message, userFacingMessage(ErrWrongCode))
	})

	t.Run("wrapped rich errors still surface", func(t *testing.T) {
		wrapped := goerrors.Wrap(errors.New("db timeout"), goerrors.CategoryAuth, "That code didn't match")
		assert.Equal(t, "That code didn't match", userFacingMessage(wrapped))
	})

	t.Run("plain errors stay generic", func(t *testing.T) {
		msg := userFacingMessage(errors.New("pq: connection refused"))
		assert.NotContains(t, msg, "connection refused")
	})
}
