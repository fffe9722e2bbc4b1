// Package registry provides the client side of the government business
// registry: the verification gateway the binding engine consults before
// allowing a bind. Verification itself (polling, document review) is an
// external workflow; the engine only reads its outcome.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Status is the registry's verdict on a business license number
type Status string

const (
	StatusUnverified Status = "unverified"
	StatusPending    Status = "pending"
	StatusVerified   Status = "verified"
	StatusRejected   Status = "rejected"
)

// VerificationResult is what the gateway returns for a license number
type VerificationResult struct {
	Status       Status `json:"status"`
	BusinessName string `json:"business_name,omitempty"`
}

// ErrUnavailable indicates the gateway could not be reached or answered with
// an unexpected response. Callers must not treat this as "not verified".
var ErrUnavailable = errors.New("verification gateway unavailable")

// Gateway supplies verification status for a business license number
type Gateway interface {
	Verify(ctx context.Context, licenseNumber string) (VerificationResult, error)
}

// Client is the HTTP implementation of Gateway
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a gateway client for the given registry base URL
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(slog.String("component", "registry_client")),
	}
}

// Verify queries the registry for the verification status of a license
// number. Transport failures and non-2xx responses surface as
// ErrUnavailable so callers never mistake an outage for a rejection.
func (c *Client) Verify(ctx context.Context, licenseNumber string) (VerificationResult, error) {
	endpoint := fmt.Sprintf("%s/businesses/%s/verification", c.baseURL, url.PathEscape(licenseNumber))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return VerificationResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "registry request failed",
			slog.String("license_number", licenseNumber),
			slog.String("error", err.Error()),
		)
		return VerificationResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.WarnContext(ctx, "registry returned unexpected status",
			slog.String("license_number", licenseNumber),
			slog.Int("status_code", resp.StatusCode),
		)
		return VerificationResult{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var result VerificationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return VerificationResult{}, fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}

	c.logger.DebugContext(ctx, "registry verification result",
		slog.String("license_number", licenseNumber),
		slog.String("status", string(result.Status)),
	)
	return result, nil
}

// StaticGateway is an in-memory Gateway for tests and standalone
// deployments without a registry endpoint.
type StaticGateway struct {
	mu      sync.RWMutex
	results map[string]VerificationResult
}

// NewStaticGateway creates a gateway seeded with fixed results. Entries map
// license number to status string.
func NewStaticGateway(seed map[string]string) *StaticGateway {
	results := make(map[string]VerificationResult, len(seed))
	for license, status := range seed {
		results[license] = VerificationResult{Status: Status(status)}
	}
	return &StaticGateway{results: results}
}

// Set replaces the result for a license number
func (g *StaticGateway) Set(licenseNumber string, result VerificationResult) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.results[licenseNumber] = result
}

// Verify returns the seeded result; unknown license numbers are unverified
func (g *StaticGateway) Verify(_ context.Context, licenseNumber string) (VerificationResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if result, ok := g.results[licenseNumber]; ok {
		return result, nil
	}
	return VerificationResult{Status: StatusUnverified}, nil
}
