package clubhouse_test

import (
	"testing"

	"github.com/castellan/clubhouse"
	"github.com/stretchr/testify/assert"
)

func TestCanonicalPhone(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "formatted US number",
			input: "(555) 301-0001",
			want:  "5553010001",
		},
		{
			name:  "international prefix",
			input: "+1 555 301 0001",
			want:  "5553010001",
		},
		{
			name:  "dashes and spaces",
			input: " 555-301-0001 ",
			want:  "5553010001",
		},
		{
			name:  "bare digits pass through",
			input: "5553010001",
			want:  "5553010001",
		},
		{
			name:    "empty input",
			input:   "",
			wantErr: true,
		},
		{
			name:    "garbage input",
			input:   "not-a-phone",
			wantErr: true,
		},
		{
			name:    "too short",
			input:   "12",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := clubhouse.CanonicalPhone(tt.input)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalPhoneEquivalentFormsCollide(t *testing.T) {
	// Different renderings of the same number must map to the same key, or
	// one member could hold several accounts.
	forms := []string{
		"(555) 301-0001",
		"+1 555 301 0001",
		"555.301.0001",
		"5553010001",
	}

	want, err := clubhouse.CanonicalPhone(forms[0])
	assert.NoError(t, err)

	for _, form := range forms[1:] {
		got, err := clubhouse.CanonicalPhone(form)
		assert.NoError(t, err)
		assert.Equal(t, want, got, "form %q diverged", form)
	}
}

func TestCanonicalPhoneInRegion(t *testing.T) {
	// National GB format. The trunk prefix is stripped when parsed against
	// the right region.
	got, err := clubhouse.CanonicalPhoneInRegion("020 7946 0958", "GB")
	assert.NoError(t, err)
	assert.Equal(t, "2079460958", got)

	// A number carrying its country code resolves the same under any region.
	intl, err := clubhouse.CanonicalPhoneInRegion("+44 20 7946 0958", "US")
	assert.NoError(t, err)
	assert.Equal(t, got, intl)

	// Empty region falls back to the package default.
	us, err := clubhouse.CanonicalPhoneInRegion("(555) 301-0001", "")
	assert.NoError(t, err)
	assert.Equal(t, "5553010001", us)
}

func TestFormatPhone(t *testing.T) {
	assert.Equal(t, "(555) 301-0001", clubhouse.FormatPhone("5553010001"))
	// Non 10-digit numbers pass through untouched.
	assert.Equal(t, "445553010001", clubhouse.FormatPhone("445553010001"))
}
