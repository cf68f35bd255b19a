// Package twitch implements the Twitch OAuth client, Helix request
// wrapper, and EventSub WebSocket session.
package twitch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nicklaw5/helix/v2"
	"golang.org/x/oauth2"
)

// Endpoint is Twitch's OAuth2 authorization-code endpoint.
var Endpoint = oauth2.Endpoint{
	AuthURL:  "https://id.twitch.tv/oauth2/authorize",
	TokenURL: "https://id.twitch.tv/oauth2/token",
}

// UserToken is the hydrated, validated identity for one Twitch user.
type UserToken struct {
	AccessToken  string
	RefreshToken string
	UserID       int64
	Login        string
	Scopes       []string
}

// OAuthClient wraps authorization-code exchange, validation, and refresh
// for Twitch, plus a Helix client bound to the current token.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       string

	oauth2Config oauth2.Config
	logger       *slog.Logger
}

// NewOAuthClient builds an OAuthClient from the configured credentials.
func NewOAuthClient(clientID, clientSecret, redirectURL, scopes string, logger *slog.Logger) *OAuthClient {
	return &OAuthClient{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
		oauth2Config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     Endpoint,
			RedirectURL:  redirectURL,
		},
		logger: logger,
	}
}

// AuthorizeURL builds the 302 target for the authorize-redirect endpoint.
func (c *OAuthClient) AuthorizeURL(state string) string {
	return c.oauth2Config.AuthCodeURL(state, oauth2.SetAuthURLParam("scope", c.Scopes))
}

// ExchangeCode performs the authorization-code grant, then validates the
// resulting access token before returning a trusted UserToken.
func (c *OAuthClient) ExchangeCode(ctx context.Context, code string) (*UserToken, error) {
	tok, err := c.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange Twitch code: %w", err)
	}
	return c.Validate(ctx, tok.AccessToken, tok.RefreshToken)
}

// Validate calls the Helix /validate endpoint and returns the identity
// it reports, carrying the access/refresh tokens through unchanged.
func (c *OAuthClient) Validate(ctx context.Context, access, refresh string) (*UserToken, error) {
	client, err := helix.NewClient(&helix.Options{
		ClientID:        c.ClientID,
		UserAccessToken: access,
	})
	if err != nil {
		return nil, fmt.Errorf("build helix client: %w", err)
	}

	valid, data, err := client.ValidateToken(access)
	if err != nil {
		return nil, fmt.Errorf("validate Twitch token: %w", err)
	}
	if !valid {
		return nil, fmt.Errorf("Twitch token failed validation")
	}

	userID, err := parseUserID(data.UserID)
	if err != nil {
		return nil, err
	}

	return &UserToken{
		AccessToken:  access,
		RefreshToken: refresh,
		UserID:       userID,
		Login:        data.Login,
		Scopes:       data.Scopes,
	}, nil
}

// RefreshOrValidate tries Validate first; on any failure it runs the
// refresh grant and validates the resulting access token. This mirrors
// the original service's fallback order exactly.
func (c *OAuthClient) RefreshOrValidate(ctx context.Context, access, refresh string) (*UserToken, error) {
	if tok, err := c.Validate(ctx, access, refresh); err == nil {
		return tok, nil
	}

	client, err := helix.NewClient(&helix.Options{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("build helix client: %w", err)
	}

	resp, err := client.RefreshUserAccessToken(refresh)
	if err != nil {
		return nil, fmt.Errorf("refresh Twitch token: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("refresh Twitch token: HTTP %d", resp.StatusCode)
	}

	newAccess := resp.Data.AccessToken
	newRefresh := resp.Data.RefreshToken
	if newRefresh == "" {
		newRefresh = refresh
	}

	return c.Validate(ctx, newAccess, newRefresh)
}

func parseUserID(s string) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(s, "%d", &id); err != nil {
		return 0, fmt.Errorf("invalid Twitch user id %q: %w", s, err)
	}
	return id, nil
}
