package psa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// httpClient is the default Client implementation over the PSA REST API.
// It only covers the two calls the engine needs; agreement sync and the rest
// of the PSA surface belong to other parts of the console.
type httpClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a Client from the configuration.
func NewClient(cfg Config) (Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("psa base_url is not configured")
	}

	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}

	return &httpClient{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		http:    &http.Client{Timeout: time.Duration(timeout) * time.Second},
	}, nil
}

func (c *httpClient) ListBillingLines(ctx context.Context, psaCompanyID string) ([]BillingLine, error) {
	endpoint := fmt.Sprintf("%s/companies/%s/billing-lines", c.baseURL, url.PathEscape(psaCompanyID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list billing lines: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("psa returned %d listing billing lines for company %s", resp.StatusCode, psaCompanyID)
	}

	var lines []BillingLine
	if err := json.NewDecoder(resp.Body).Decode(&lines); err != nil {
		return nil, fmt.Errorf("failed to decode billing lines: %w", err)
	}

	return lines, nil
}

func (c *httpClient) UpdateLineQuantity(ctx context.Context, agreementExternalID, lineExternalID string, quantity int) error {
	endpoint := fmt.Sprintf("%s/agreements/%s/lines/%s",
		c.baseURL, url.PathEscape(agreementExternalID), url.PathEscape(lineExternalID))

	body, err := json.Marshal(map[string]int{"quantity": quantity})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to update line quantity: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("psa returned %d updating line %s on agreement %s", resp.StatusCode, lineExternalID, agreementExternalID)
	}

	return nil
}

func (c *httpClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
