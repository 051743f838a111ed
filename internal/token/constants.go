package token

// OAuth 2.0 identifiers & endpoints for the calendar provider.
// The client ID is a variable (not const) so it can be replaced at build time:
//   go build -ldflags "-X github.com/bnema/meeting-alertd/internal/token.OAuthClientID=YOUR_ID"
// It can also be overridden at runtime via MEETING_ALERTD_CLIENT_ID.
// NOTE: a device-flow client ID is public by design; no secret is shipped.

var (
	// Default public OAuth 2.0 client ID (safe to publish)
	OAuthClientID = ""
)

const (
	DeviceAuthURL = "https://oauth2.googleapis.com/device/code"
	TokenURL      = "https://oauth2.googleapis.com/token"
	TokenInfoURL  = "https://oauth2.googleapis.com/tokeninfo"

	ScopeCalendarReadonly = "https://www.googleapis.com/auth/calendar.readonly"
)

// Scopes defines the OAuth scopes required for calendar access
var Scopes = []string{ScopeCalendarReadonly}
