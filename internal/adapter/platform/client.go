// Package platform provides HTTP clients for the home-automation platform:
// a bearer-authorized REST client scoped to one installation's token, the
// installed-app API built on it, and the OAuth token refresh client.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/campfirehq/hestia/internal/fault"
	"github.com/campfirehq/hestia/internal/resilience"
)

const defaultHTTPTimeout = 10 * time.Second

// Client issues bearer-token JSON calls against the platform API.
// A Client is bound to a single token; the registry discards and rebuilds
// it whenever the installation's token changes.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a platform API client for the given token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// Token returns the bearer token the client was built with.
func (c *Client) Token() string { return c.token }

// Do issues an API call and decodes the JSON response into out (when out
// is non-nil). A 401 response maps to fault.ErrAuthInvalid so the task
// runner's remediation fires; any other non-2xx maps to *fault.UpstreamError.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	data, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &fault.SchemaError{Err: fmt.Errorf("decode %s %s: %w", method, path, err)}
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var result []byte
	call := func() error {
		var bodyReader io.Reader
		if body != nil {
			encoded, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("encode request: %w", err)
			}
			bodyReader = bytes.NewReader(encoded)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%s %s: %w", method, path, fault.ErrAuthInvalid)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &fault.UpstreamError{Status: resp.StatusCode, Body: string(data)}
		}

		result = data
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}

// Get issues a GET against an absolute URL with the client's token. Used
// by the confirmation phase, whose target URL is platform-provided rather
// than relative to the API base.
func (c *Client) Get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("GET %s: %w", url, fault.ErrAuthInvalid)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &fault.UpstreamError{Status: resp.StatusCode, Body: string(data)}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &fault.SchemaError{Err: fmt.Errorf("decode %s: %w", url, err)}
	}
	return nil
}
