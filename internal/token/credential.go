package token

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Credential is the bearer credential this process keeps usable. Validity is
// never derived from local expiry math; LastValidatedAt only records when the
// server last confirmed the token, letting very recent confirmations be
// reused within the same operation.
type Credential struct {
	AccessToken     string    `json:"access_token"`
	RefreshToken    string    `json:"refresh_token,omitempty"`
	LastValidatedAt time.Time `json:"last_validated_at"`
}

// FromOAuth2 converts an oauth2 token obtained from an acquisition flow.
func FromOAuth2(t *oauth2.Token) *Credential {
	return &Credential{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
	}
}

// OAuth2 converts the credential back for libraries that want oauth2.Token.
// No expiry is set: the server probe is the authority on validity.
func (c *Credential) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    "Bearer",
	}
}

// minOpaqueTokenLen is the shortest pasted token accepted as plausible when
// it is not JWT-shaped.
const minOpaqueTokenLen = 40

// SanitizeAccessToken normalizes a user-pasted token and checks its shape.
// An optional bearer-scheme prefix is stripped; the remainder must either
// decompose into three dot-separated parts or be a sufficiently long opaque
// string. This is a sanity check only; real validation is the server probe.
func SanitizeAccessToken(raw string) (string, error) {
	tok := strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(tok, "Bearer "); ok {
		tok = strings.TrimSpace(rest)
	} else if rest, ok := strings.CutPrefix(tok, "bearer "); ok {
		tok = strings.TrimSpace(rest)
	}

	if tok == "" {
		return "", fmt.Errorf("empty token")
	}

	if parts := strings.Split(tok, "."); len(parts) == 3 {
		for _, p := range parts {
			if p == "" {
				return "", fmt.Errorf("malformed token: empty segment")
			}
		}
		return tok, nil
	}

	if len(tok) < minOpaqueTokenLen {
		return "", fmt.Errorf("token too short to be plausible (%d chars)", len(tok))
	}

	return tok, nil
}
