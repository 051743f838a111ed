package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeAccessToken(t *testing.T) {
	longOpaque := strings.Repeat("a", 64)

	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"jwt shaped", "aaa.bbb.ccc", "aaa.bbb.ccc", false},
		{"bearer prefix stripped", "Bearer aaa.bbb.ccc", "aaa.bbb.ccc", false},
		{"lowercase bearer", "bearer " + longOpaque, longOpaque, false},
		{"surrounding whitespace", "  aaa.bbb.ccc \n", "aaa.bbb.ccc", false},
		{"long opaque", longOpaque, longOpaque, false},
		{"empty", "", "", true},
		{"only bearer", "Bearer ", "", true},
		{"short opaque", "abc123", "", true},
		{"empty jwt segment", "aaa..ccc", "", true},
		{"two segments too short", "aaa.bbb", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeAccessToken(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCredentialOAuth2RoundTrip(t *testing.T) {
	cred := &Credential{AccessToken: "access", RefreshToken: "refresh"}

	tok := cred.OAuth2()
	assert.Equal(t, "access", tok.AccessToken)
	assert.Equal(t, "refresh", tok.RefreshToken)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.True(t, tok.Expiry.IsZero(), "no local expiry: the server probe decides validity")

	back := FromOAuth2(tok)
	assert.Equal(t, cred.AccessToken, back.AccessToken)
	assert.Equal(t, cred.RefreshToken, back.RefreshToken)
}
