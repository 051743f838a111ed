package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/bnema/meeting-alertd/internal/logger"
)

// Outcome reports how a usable credential was obtained. It drives telemetry
// only; control flow branches solely on the returned error.
type Outcome int

const (
	// OutcomeValidNoAction: the credential was validated so recently that no
	// round trip was needed.
	OutcomeValidNoAction Outcome = iota
	// OutcomeValidatedByServer: a probe confirmed the existing token.
	OutcomeValidatedByServer
	// OutcomeRefreshed: a silent or legacy refresh produced a new token.
	OutcomeRefreshed
	// OutcomeNewInteractiveAuth: the user completed an interactive or manual
	// flow.
	OutcomeNewInteractiveAuth
	// OutcomeCancelled: the user explicitly declined.
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValidNoAction:
		return "valid_no_action"
	case OutcomeValidatedByServer:
		return "validated_by_server"
	case OutcomeRefreshed:
		return "refreshed"
	case OutcomeNewInteractiveAuth:
		return "new_interactive_auth"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

const (
	defaultInteractiveTimeout = 120 * time.Second
	defaultManualTimeout      = 5 * time.Minute
	defaultManualAttempts     = 3

	// probeReuseWindow is how long a server confirmation covers follow-up
	// checks within the same operation. Anything older is re-probed.
	probeReuseWindow = 10 * time.Second
)

// Manager keeps the bearer credential usable across silent refresh,
// interactive re-authentication, and manual fallback. All credential
// mutation funnels through its lock; interactive acquisition is additionally
// serialized so at most one prompt or browser flow is ever active.
type Manager struct {
	mu   sync.Mutex // guards cred
	cred *Credential

	acquireMu  sync.Mutex // guards inProgress
	inProgress bool

	store       Store
	validator   Validator
	interactive InteractiveProvider
	manual      ManualEntry

	clientID   string
	httpClient *http.Client

	interactiveTimeout time.Duration
	manualTimeout      time.Duration
	manualAttempts     int
}

// NewManager loads any persisted credential and wires the server validator.
// Interactive and manual channels are optional and attached separately.
func NewManager(store Store, validator Validator) (*Manager, error) {
	clientID := OAuthClientID
	if env := os.Getenv("MEETING_ALERTD_CLIENT_ID"); env != "" {
		clientID = env
	}

	m := &Manager{
		store:              store,
		validator:          validator,
		clientID:           clientID,
		httpClient:         &http.Client{Timeout: 30 * time.Second},
		interactiveTimeout: defaultInteractiveTimeout,
		manualTimeout:      defaultManualTimeout,
		manualAttempts:     defaultManualAttempts,
	}

	if store != nil {
		cred, err := store.Load()
		if err != nil {
			logger.Warn("failed to load persisted credential, starting unauthenticated", "error", err)
		} else {
			m.cred = cred
		}
	}

	return m, nil
}

// SetInteractiveProvider attaches the browser-mediated login flow.
func (m *Manager) SetInteractiveProvider(p InteractiveProvider) {
	m.interactive = p
}

// SetManualEntry attaches the pasted-token fallback channel.
func (m *Manager) SetManualEntry(e ManualEntry) {
	m.manual = e
}

// current returns the credential under the lock. The returned value is read
// only; replacement goes through adopt.
func (m *Manager) current() *Credential {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred
}

// AccessToken returns the current access token, or "" when unauthenticated.
func (m *Manager) AccessToken() string {
	if cred := m.current(); cred != nil {
		return cred.AccessToken
	}
	return ""
}

// adopt installs a newly obtained credential and persists it.
func (m *Manager) adopt(cred *Credential) {
	cred.LastValidatedAt = time.Now()

	m.mu.Lock()
	m.cred = cred
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Save(cred); err != nil {
			logger.Error("failed to persist credential", "error", err)
		}
	}
}

func (m *Manager) markValidated() {
	m.mu.Lock()
	if m.cred != nil {
		m.cred.LastValidatedAt = time.Now()
	}
	m.mu.Unlock()
}

// SignOut clears the credential in memory and on disk.
func (m *Manager) SignOut() error {
	m.mu.Lock()
	m.cred = nil
	m.mu.Unlock()

	if m.store != nil {
		return m.store.Clear()
	}
	return nil
}

// HasValidToken never trusts local state: it performs one lightweight probe
// and returns true only on an explicit success response from the server.
func (m *Manager) HasValidToken(ctx context.Context) bool {
	cred := m.current()
	if cred == nil {
		return false
	}

	ok, err := m.validator.Probe(ctx, cred.AccessToken)
	if err != nil {
		logger.Warn("token probe failed", "error", err)
		return false
	}
	if ok {
		m.markValidated()
	}
	return ok
}

// Authenticate ensures a usable credential, attempting in order: probe of the
// current token, silent refresh, legacy refresh-token exchange, interactive
// login, manual entry. Each stage's failure falls through to the next;
// exhaustion of all stages or explicit user cancellation stops the chain.
func (m *Manager) Authenticate(ctx context.Context) (Outcome, error) {
	if cred := m.current(); cred != nil {
		if time.Since(cred.LastValidatedAt) < probeReuseWindow {
			return OutcomeValidNoAction, nil
		}

		ok, err := m.validator.Probe(ctx, cred.AccessToken)
		if err != nil {
			logger.Warn("token probe failed, falling through to acquisition", "error", err)
		} else if ok {
			m.markValidated()
			return OutcomeValidatedByServer, nil
		}
	}

	return m.acquire(ctx)
}

// Do issues an outbound call with the current token. On an unauthorized
// response it attempts exactly one credential recovery and retries the call
// exactly once; a second unauthorized response is surfaced as a hard failure.
func (m *Manager) Do(ctx context.Context, call func(ctx context.Context, accessToken string) error) error {
	if m.current() == nil {
		if _, err := m.Authenticate(ctx); err != nil {
			return err
		}
	}

	err := call(ctx, m.AccessToken())
	if err == nil || !errors.Is(err, ErrUnauthorized) {
		return err
	}

	logger.Info("request unauthorized, recovering credential", "error", err)
	if _, rerr := m.acquire(ctx); rerr != nil {
		return fmt.Errorf("credential recovery failed: %w", rerr)
	}

	if err := call(ctx, m.AccessToken()); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return fmt.Errorf("request still unauthorized after retry: %w", err)
		}
		return err
	}
	return nil
}

// acquire runs the fallback chain below the probe: silent refresh, legacy
// refresh exchange, then interactive/manual acquisition.
func (m *Manager) acquire(ctx context.Context) (Outcome, error) {
	if cred, err := m.silentRefresh(ctx); err == nil {
		m.adopt(cred)
		logger.Info("credential refreshed silently")
		return OutcomeRefreshed, nil
	} else {
		logger.Debug("silent refresh unavailable", "error", err)
	}

	if cred, err := m.legacyRefresh(ctx); err == nil {
		m.adopt(cred)
		logger.Info("credential refreshed via token endpoint")
		return OutcomeRefreshed, nil
	} else {
		logger.Debug("legacy refresh unavailable", "error", err)
	}

	return m.interactiveAcquire(ctx)
}

// silentRefresh exchanges the cached refresh token through the oauth2
// session machinery.
func (m *Manager) silentRefresh(ctx context.Context) (*Credential, error) {
	cred := m.current()
	if cred == nil || cred.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token cached")
	}

	cfg := &oauth2.Config{
		ClientID: m.clientID,
		Endpoint: google.Endpoint,
		Scopes:   Scopes,
	}

	// Expiry forced into the past so the token source performs a real
	// refresh instead of handing back the possibly revoked token.
	seed := cred.OAuth2()
	seed.Expiry = time.Now().Add(-time.Minute)

	tok, err := cfg.TokenSource(ctx, seed).Token()
	if err != nil {
		return nil, fmt.Errorf("silent refresh failed: %w", err)
	}

	fresh := FromOAuth2(tok)
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = cred.RefreshToken
	}
	return fresh, nil
}

// legacyRefresh posts the refresh token straight to the token endpoint.
// Device-flow clients only need the client ID, no secret.
func (m *Manager) legacyRefresh(ctx context.Context) (*Credential, error) {
	cred := m.current()
	if cred == nil || cred.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token cached")
	}

	params := url.Values{
		"client_id":     {m.clientID},
		"refresh_token": {cred.RefreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, TokenURL, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Operation: "legacy_refresh", Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errResp); decodeErr == nil {
			return nil, fmt.Errorf("token refresh failed: %s - %s", errResp.Error, errResp.ErrorDescription)
		}
		return nil, fmt.Errorf("token refresh failed with status %d", resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		TokenType    string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("invalid refresh response: missing access token")
	}

	fresh := &Credential{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = cred.RefreshToken
	}
	return fresh, nil
}

// interactiveAcquire runs the interactive then manual stages. At most one of
// these flows may be active at any time: two concurrent prompts corrupt UI
// state and can race on writing the credential, so a second caller gets
// ErrAuthInProgress instead of a second browser window.
func (m *Manager) interactiveAcquire(ctx context.Context) (Outcome, error) {
	m.acquireMu.Lock()
	if m.inProgress {
		m.acquireMu.Unlock()
		return OutcomeValidNoAction, ErrAuthInProgress
	}
	m.inProgress = true
	m.acquireMu.Unlock()

	defer func() {
		m.acquireMu.Lock()
		m.inProgress = false
		m.acquireMu.Unlock()
	}()

	if m.interactive != nil {
		ictx, cancel := context.WithTimeout(ctx, m.interactiveTimeout)
		cred, err := m.interactive.Acquire(ictx)
		timedOut := errors.Is(ictx.Err(), context.DeadlineExceeded)
		cancel()

		switch {
		case err == nil:
			m.adopt(cred)
			return OutcomeNewInteractiveAuth, nil
		case ctx.Err() != nil:
			return OutcomeCancelled, fmt.Errorf("interactive auth abandoned: %w", ErrUserCancelled)
		case errors.Is(err, ErrUserCancelled) && !timedOut:
			// Explicit user denial, not a timeout: stop the chain.
			return OutcomeCancelled, ErrUserCancelled
		default:
			logger.Warn("interactive auth failed, falling back to manual entry", "error", err)
		}
	}

	return m.manualAcquire(ctx)
}

// manualAcquire prompts for a pasted token, validating each submission
// against the server before accepting it. Bounded retries, then give up.
func (m *Manager) manualAcquire(ctx context.Context) (Outcome, error) {
	if m.manual == nil {
		return OutcomeValidNoAction, ErrAuthExhausted
	}

	for attempt := 1; attempt <= m.manualAttempts; attempt++ {
		mctx, cancel := context.WithTimeout(ctx, m.manualTimeout)
		raw, err := m.manual.Prompt(mctx)
		cancel()

		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrUserCancelled) {
				return OutcomeCancelled, fmt.Errorf("manual entry: %w", ErrUserCancelled)
			}
			logger.Warn("manual entry prompt failed", "attempt", attempt, "error", err)
			continue
		}

		tok, err := SanitizeAccessToken(raw)
		if err != nil {
			logger.Warn("submitted token failed format check", "attempt", attempt, "error", err)
			continue
		}

		ok, err := m.validator.Probe(ctx, tok)
		if err != nil {
			logger.Warn("could not validate submitted token", "attempt", attempt, "error", err)
			continue
		}
		if !ok {
			logger.Warn("submitted token rejected by server",
				"attempt", attempt, "error", ErrValidationRejected)
			continue
		}

		m.adopt(&Credential{AccessToken: tok})
		return OutcomeNewInteractiveAuth, nil
	}

	return OutcomeValidNoAction, fmt.Errorf("manual entry gave up after %d attempts: %w", m.manualAttempts, ErrAuthExhausted)
}
