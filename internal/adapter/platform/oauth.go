package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/campfirehq/hestia/internal/config"
	"github.com/campfirehq/hestia/internal/fault"
)

// Token is the OAuth token pair returned by a refresh.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
}

// OAuthClient calls the platform's token endpoint with the app's static
// client credentials.
type OAuthClient struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// NewOAuthClient creates a token refresh client from the OAuth config.
func NewOAuthClient(cfg config.OAuth) *OAuthClient {
	return &OAuthClient{
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
	}
}

// Refresh exchanges a refresh token for a new token pair. A 401-class
// rejection of the client credentials maps to fault.ErrAuthInvalid; any
// other failure status maps to *fault.UpstreamError carrying the endpoint's
// error/error_description body.
func (c *OAuthClient) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("token endpoint rejected client credentials: %w", fault.ErrAuthInvalid)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &fault.UpstreamError{Status: resp.StatusCode, Body: string(data)}
	}

	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, &fault.SchemaError{Err: fmt.Errorf("decode token response: %w", err)}
	}
	if tok.AccessToken == "" {
		return nil, &fault.SchemaError{Err: fmt.Errorf("token response missing access_token: %s", data)}
	}
	return &tok, nil
}
