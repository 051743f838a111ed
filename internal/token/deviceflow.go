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
	"time"

	"github.com/bnema/meeting-alertd/internal/logger"
	"github.com/bnema/meeting-alertd/internal/security"
)

// InteractiveProvider runs a user-facing login flow and returns a credential.
// Implementations must honor context cancellation and return ErrUserCancelled
// when the user explicitly declines.
type InteractiveProvider interface {
	Acquire(ctx context.Context) (*Credential, error)
}

// DeviceFlow implements InteractiveProvider with the OAuth 2.0 device
// authorization grant: the user visits a verification URL in a browser while
// this process polls the token endpoint.
type DeviceFlow struct {
	clientID   string
	httpClient *http.Client
}

// deviceCodeResponse is the device authorization endpoint's reply
type deviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURL string `json:"verification_url"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// tokenResponse is the token endpoint's reply
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

// pollError is a non-terminal error code from the token endpoint
type pollError struct {
	ErrorCode   string
	Description string
}

func (e *pollError) Error() string {
	return fmt.Sprintf("poll error: %s - %s", e.ErrorCode, e.Description)
}

// NewDeviceFlow picks up the client ID from the environment when set,
// falling back to the build-time value.
func NewDeviceFlow() *DeviceFlow {
	clientID := OAuthClientID
	if env := os.Getenv("MEETING_ALERTD_CLIENT_ID"); env != "" {
		clientID = env
	}

	return &DeviceFlow{
		clientID:   clientID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Acquire performs the complete device flow. The caller bounds the wait via
// ctx; user denial maps to ErrUserCancelled.
func (d *DeviceFlow) Acquire(ctx context.Context) (*Credential, error) {
	if d.clientID == "" {
		return nil, fmt.Errorf("no OAuth client ID configured")
	}

	logger.Debug("device auth starting", "client_id", security.RedactString(d.clientID))

	deviceResp, err := d.requestDeviceCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to request device code: %w", err)
	}

	d.displayAuthInstructions(deviceResp)

	cred, err := d.pollForToken(ctx, deviceResp)
	if err != nil {
		return nil, err
	}

	logger.Info("device auth succeeded", "has_refresh_token", cred.RefreshToken != "")
	return cred, nil
}

func (d *DeviceFlow) requestDeviceCode(ctx context.Context) (*deviceCodeResponse, error) {
	params := url.Values{
		"client_id": {d.clientID},
		"scope":     {strings.Join(Scopes, " ")},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, DeviceAuthURL, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Operation: "device_code_request", Err: err}
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
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
			if errResp.Error == "rate_limit_exceeded" {
				return nil, fmt.Errorf("rate limit exceeded, please try again later")
			}
			return nil, fmt.Errorf("server error: %s - %s", errResp.Error, errResp.ErrorDescription)
		}
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var deviceResp deviceCodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&deviceResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if deviceResp.DeviceCode == "" || deviceResp.UserCode == "" || deviceResp.VerificationURL == "" {
		return nil, fmt.Errorf("invalid device code response: missing required fields")
	}

	return &deviceResp, nil
}

func (d *DeviceFlow) displayAuthInstructions(deviceResp *deviceCodeResponse) {
	fmt.Printf("\nSign-in required\n")
	fmt.Printf("================\n\n")
	fmt.Printf("Please visit: %s\n", deviceResp.VerificationURL)
	fmt.Printf("Enter code:   %s\n\n", deviceResp.UserCode)

	if deviceResp.ExpiresIn > 0 {
		fmt.Printf("This code expires in %d minutes\n", deviceResp.ExpiresIn/60)
	}

	fmt.Printf("Waiting for authorization...\n\n")
}

// pollForToken polls the token endpoint until the user completes or declines
func (d *DeviceFlow) pollForToken(ctx context.Context, deviceResp *deviceCodeResponse) (*Credential, error) {
	interval := deviceResp.Interval
	if interval <= 0 {
		interval = 5
	}

	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()

	deadline := time.Now().Add(time.Duration(deviceResp.ExpiresIn) * time.Second)
	pollCount := 0

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("device auth abandoned: %w", ErrUserCancelled)

		case <-ticker.C:
			pollCount++

			if time.Now().After(deadline) {
				return nil, fmt.Errorf("device code expired after %d polls", pollCount)
			}

			cred, err := d.exchangeDeviceCode(ctx, deviceResp.DeviceCode)
			if err != nil {
				var perr *pollError
				if errors.As(err, &perr) {
					switch perr.ErrorCode {
					case "authorization_pending":
						continue
					case "slow_down":
						ticker.Reset(time.Duration(interval+5) * time.Second)
						logger.Debug("token endpoint asked to slow down", "poll_count", pollCount)
						continue
					case "access_denied":
						return nil, fmt.Errorf("user denied access: %w", ErrUserCancelled)
					case "expired_token":
						return nil, fmt.Errorf("device code expired")
					default:
						return nil, fmt.Errorf("authentication error: %s", perr.Description)
					}
				}
				return nil, err
			}

			logger.Debug("device code exchanged", "poll_count", pollCount)
			return cred, nil
		}
	}
}

func (d *DeviceFlow) exchangeDeviceCode(ctx context.Context, deviceCode string) (*Credential, error) {
	params := url.Values{
		"client_id":   {d.clientID},
		"device_code": {deviceCode},
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, TokenURL, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Operation: "device_code_exchange", Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode == http.StatusOK {
		var tokenResp tokenResponse
		if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
			return nil, fmt.Errorf("failed to decode token response: %w", err)
		}

		if tokenResp.AccessToken == "" {
			return nil, fmt.Errorf("invalid token response: missing access token")
		}

		return &Credential{
			AccessToken:  tokenResp.AccessToken,
			RefreshToken: tokenResp.RefreshToken,
		}, nil
	}

	var errResp struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return nil, fmt.Errorf("unexpected status code %d and failed to decode error", resp.StatusCode)
	}

	return nil, &pollError{
		ErrorCode:   errResp.Error,
		Description: errResp.ErrorDescription,
	}
}
