package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// ValidateResult is the identity authority's answer for a credential pair.
type ValidateResult struct {
	Valid      bool   `json:"valid"`
	TenantID   string `json:"client_id"`
	TenantName string `json:"client_name"`
	DailyLimit int    `json:"daily_limit"`
	Message    string `json:"message"`
}

// IdentityClient validates credentials against the identity authority.
type IdentityClient interface {
	Validate(ctx context.Context, clientID, clientSecret string) (*ValidateResult, error)
}

type httpIdentityClient struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

// NewHTTPIdentityClient builds the HTTP client for the identity authority.
func NewHTTPIdentityClient(baseURL string, timeout time.Duration, log *slog.Logger) IdentityClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &httpIdentityClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

func (c *httpIdentityClient) Validate(ctx context.Context, clientID, clientSecret string) (*ValidateResult, error) {
	body, err := json.Marshal(map[string]string{
		"client_id":     clientID,
		"client_secret": clientSecret,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/auth/validate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Error("identity validate request failed", "error", err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity authority returned status %d", resp.StatusCode)
	}

	var result ValidateResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding identity response: %w", err)
	}
	return &result, nil
}
