// Package streamlabs implements the Streamlabs OAuth client and the
// hand-rolled socket.io v4 event client.
package streamlabs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	userURL        = "https://streamlabs.com/api/v2.0/user"
	socketTokenURL = "https://streamlabs.com/api/v2.0/socket/token"
	tokenURL       = "https://streamlabs.com/api/v2.0/token"
)

// UserToken is the hydrated identity for one Streamlabs user. Streamlabs
// access tokens do not expire, but the gateway still carries a refresh
// token through so a revoked token can be replaced without reauthorizing.
type UserToken struct {
	AccessToken  string
	RefreshToken string
	SocketToken  string
	UserID       int64
	Login        string
}

// OAuthClient wraps authorization-code exchange, validation, and refresh
// for Streamlabs.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       string

	httpClient *http.Client
	logger     *slog.Logger
}

// NewOAuthClient builds an OAuthClient from the configured credentials.
func NewOAuthClient(clientID, clientSecret, redirectURL, scopes string, logger *slog.Logger) *OAuthClient {
	return &OAuthClient{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		logger:       logger,
	}
}

// AuthorizeURL builds the 302 target for the authorize-redirect endpoint.
func (c *OAuthClient) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.ClientID)
	q.Set("redirect_uri", c.RedirectURL)
	q.Set("scope", c.Scopes)
	q.Set("state", state)
	return "https://streamlabs.com/api/v2.0/authorize?" + q.Encode()
}

// ExchangeCode performs the authorization-code grant and validates the
// resulting token.
func (c *OAuthClient) ExchangeCode(ctx context.Context, code string) (*UserToken, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {c.ClientID},
		"client_secret": {c.ClientSecret},
		"redirect_uri":  {c.RedirectURL},
		"code":          {code},
	}

	resp, err := c.postForm(ctx, tokenURL, form)
	if err != nil {
		return nil, fmt.Errorf("exchange Streamlabs code: %w", err)
	}

	access, refresh, err := parseTokenResponse(resp)
	if err != nil {
		return nil, err
	}
	return c.Validate(ctx, access, refresh)
}

// Validate fetches the user's identity and a fresh socket token for an
// access token believed to still be live.
func (c *OAuthClient) Validate(ctx context.Context, access, refresh string) (*UserToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+access)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("validate Streamlabs token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		loc := resp.Header.Get("Location")
		return nil, fmt.Errorf("Streamlabs token validation redirected to %q", loc)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("validate Streamlabs token: HTTP %d", resp.StatusCode)
	}

	var body struct {
		Streamlabs struct {
			ID          int64  `json:"id"`
			DisplayName string `json:"display_name"`
		} `json:"streamlabs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode Streamlabs user response: %w", err)
	}
	if body.Streamlabs.ID == 0 {
		return nil, fmt.Errorf("no streamlabs.id field in validation response")
	}

	socketToken, err := c.fetchSocketToken(ctx, access)
	if err != nil {
		return nil, err
	}

	return &UserToken{
		AccessToken:  access,
		RefreshToken: refresh,
		SocketToken:  socketToken,
		UserID:       body.Streamlabs.ID,
		Login:        body.Streamlabs.DisplayName,
	}, nil
}

func (c *OAuthClient) fetchSocketToken(ctx context.Context, access string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, socketTokenURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+access)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch Streamlabs socket token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch Streamlabs socket token: HTTP %d", resp.StatusCode)
	}

	var body struct {
		SocketToken string `json:"socket_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode Streamlabs socket token response: %w", err)
	}
	if body.SocketToken == "" {
		return "", fmt.Errorf("no socket_token field in socket token response")
	}
	return body.SocketToken, nil
}

// refreshToken runs the refresh grant and returns the new access/refresh
// pair without validating it.
func (c *OAuthClient) refreshToken(ctx context.Context, refresh string) (string, string, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.ClientID},
		"client_secret": {c.ClientSecret},
		"redirect_uri":  {c.RedirectURL},
		"refresh_token": {refresh},
	}

	resp, err := c.postForm(ctx, tokenURL, form)
	if err != nil {
		return "", "", fmt.Errorf("refresh Streamlabs token: %w", err)
	}
	return parseTokenResponse(resp)
}

// RefreshOrValidate tries Validate first; on any failure it runs the
// refresh grant and validates the resulting access token. Mirrors the
// original service's from_existing_or_refresh_token fallback order.
func (c *OAuthClient) RefreshOrValidate(ctx context.Context, access, refresh string) (*UserToken, error) {
	if tok, err := c.Validate(ctx, access, refresh); err == nil {
		return tok, nil
	}

	newAccess, newRefresh, err := c.refreshToken(ctx, refresh)
	if err != nil {
		return nil, err
	}
	return c.Validate(ctx, newAccess, newRefresh)
}

func (c *OAuthClient) postForm(ctx context.Context, target string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.httpClient.Do(req)
}

func parseTokenResponse(resp *http.Response) (access, refresh string, err error) {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", "", fmt.Errorf("decode token response: %w", err)
	}
	if body.AccessToken == "" || body.RefreshToken == "" {
		return "", "", fmt.Errorf("incomplete token response")
	}
	return body.AccessToken, body.RefreshToken, nil
}
