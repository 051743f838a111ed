package token

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bnema/meeting-alertd/internal/logger"
)

// Validator confirms a token is still accepted by the server. An invalid or
// expired token is a normal false result, never an error; the error return is
// reserved for transport failures where validity is simply unknown.
type Validator interface {
	Probe(ctx context.Context, accessToken string) (bool, error)
}

// TokenInfoValidator probes the provider's tokeninfo endpoint. Servers do
// not reliably expose client-decodable expiry, so validity is determined
// empirically with one lightweight round trip.
type TokenInfoValidator struct {
	endpoint   string
	httpClient *http.Client
}

func NewTokenInfoValidator() *TokenInfoValidator {
	return &TokenInfoValidator{
		endpoint:   TokenInfoURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (v *TokenInfoValidator) Probe(ctx context.Context, accessToken string) (bool, error) {
	if accessToken == "" {
		return false, nil
	}

	probeURL := fmt.Sprintf("%s?access_token=%s", v.endpoint, url.QueryEscape(accessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return false, &TransportError{Operation: "probe", Err: err}
	}

	start := time.Now()
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false, &TransportError{Operation: "probe", Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Warn("failed to close probe response body", "error", closeErr)
		}
	}()

	logger.Debug("token probe completed",
		"status", resp.StatusCode,
		"duration", time.Since(start).String())

	// Only an explicit success response counts as valid. 4xx means the
	// server rejected the token; anything else leaves validity unknown.
	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return false, nil
	default:
		return false, &TransportError{
			Operation: "probe",
			Err:       fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
}
