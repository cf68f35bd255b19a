package httpapi

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/acmdf/vrctv/internal/twitch"
)

// TestHandleTwitchCallback_ScopeMismatch exercises the exact-match scope
// check: Twitch may reorder or drop scopes on the callback, and this
// gateway rejects anything but a byte-for-byte match against what was
// configured, per the open question it preserves deliberately.
func TestHandleTwitchCallback_ScopeMismatch(t *testing.T) {
	cases := []struct {
		name       string
		wantScopes string
		gotScope   string
	}{
		{name: "reordered scopes are rejected", wantScopes: "chat:read whispers:read", gotScope: "whispers:read chat:read"},
		{name: "missing scope is rejected", wantScopes: "chat:read whispers:read", gotScope: "chat:read"},
		{name: "empty scope is rejected", wantScopes: "chat:read whispers:read", gotScope: ""},
		{name: "extra scope is rejected", wantScopes: "chat:read whispers:read", gotScope: "chat:read whispers:read channel:read:redemptions"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := &App{
				TwitchOAuth: twitch.NewOAuthClient("client", "secret", "https://example.test/callback", tc.wantScopes, slog.New(slog.NewTextHandler(io.Discard, nil))),
				Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
			}
			h := &handlers{app: app}

			req := httptest.NewRequest(http.MethodGet, "/twitch/callback?code=abc&state=xyz&scope="+url.QueryEscape(tc.gotScope), nil)
			rr := httptest.NewRecorder()

			h.handleTwitchCallback(rr, req)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 for mismatched scope, got %d", rr.Code)
			}
		})
	}
}
