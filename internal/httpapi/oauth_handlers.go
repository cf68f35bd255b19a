package httpapi

import (
	"fmt"
	"net/http"

	"github.com/acmdf/vrctv/internal/protocol"
	"github.com/acmdf/vrctv/internal/registry"
	"github.com/acmdf/vrctv/internal/streamlabs"
	"github.com/acmdf/vrctv/internal/twitch"
)

func (h *handlers) handleTwitchAuthorize(w http.ResponseWriter, r *http.Request) {
	state := r.PathValue("state")
	http.Redirect(w, r, h.app.TwitchOAuth.AuthorizeURL(state), http.StatusFound)
}

func (h *handlers) handleStreamlabsAuthorize(w http.ResponseWriter, r *http.Request) {
	state := r.PathValue("state")
	http.Redirect(w, r, h.app.StreamlabsOAuth.AuthorizeURL(state), http.StatusFound)
}

// handleTwitchCallback completes the Twitch authorization-code grant.
// The scope parameter is compared byte-for-byte against the configured
// scopes string, exactly as the upstream service did; providers may
// reorder scopes, so this exact-match is preserved deliberately rather
// than "fixed", per the open question it was flagged under.
func (h *handlers) handleTwitchCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	scope := r.URL.Query().Get("scope")

	if scope != h.app.TwitchOAuth.Scopes {
		http.Error(w, fmt.Sprintf("unexpected scope %q", scope), http.StatusBadRequest)
		return
	}

	tok, err := h.app.TwitchOAuth.ExchangeCode(r.Context(), code)
	if err != nil {
		h.app.Logger.Error("twitch code exchange failed", "error", err)
		http.Error(w, "failed to complete Twitch authorization", http.StatusInternalServerError)
		return
	}

	if err := h.app.Store.InsertOrIgnoreTwitchUser(r.Context(), tok.UserID); err != nil {
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	if err := h.app.Store.InsertOrIgnoreActiveKey(r.Context(), state); err != nil {
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	if err := h.app.Store.UpsertTwitchKey(r.Context(), tok.UserID, tok.AccessToken, tok.RefreshToken, state); err != nil {
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}

	h.injectTwitchToken(state, tok)
	writeSuccessPage(w, "Twitch account connected. You can close this window.")
}

func (h *handlers) handleStreamlabsCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	tok, err := h.app.StreamlabsOAuth.ExchangeCode(r.Context(), code)
	if err != nil {
		h.app.Logger.Error("streamlabs code exchange failed", "error", err)
		http.Error(w, "failed to complete Streamlabs authorization", http.StatusInternalServerError)
		return
	}

	if err := h.app.Store.InsertOrIgnoreStreamlabsUser(r.Context(), tok.UserID); err != nil {
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	if err := h.app.Store.InsertOrIgnoreActiveKey(r.Context(), state); err != nil {
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	if err := h.app.Store.UpsertStreamlabsKey(r.Context(), tok.UserID, tok.AccessToken, tok.RefreshToken, state); err != nil {
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}

	h.injectStreamlabsToken(state, tok)
	writeSuccessPage(w, "Streamlabs account connected. You can close this window.")
}

// injectTwitchToken re-resolves the Client Entry for state (if any),
// writes the freshly obtained token into its context, and fans out an
// updated ConnectResponse to every sibling.
func (h *handlers) injectTwitchToken(state string, tok *twitch.UserToken) {
	entry, ok := h.app.Registry.Lookup(state)
	if !ok || entry.Context == nil {
		return
	}
	entry.Context.SetTwitchToken(tok)
	h.fanoutConnectResponse(entry)
}

func (h *handlers) injectStreamlabsToken(state string, tok *streamlabs.UserToken) {
	entry, ok := h.app.Registry.Lookup(state)
	if !ok || entry.Context == nil {
		return
	}
	entry.Context.SetStreamlabsToken(tok)
	h.fanoutConnectResponse(entry)
}

func (h *handlers) fanoutConnectResponse(entry *registry.ClientEntry) {
	twitchTok, streamlabsTok := entry.Context.Snapshot()
	resp := protocol.ConnectResponse{}
	if twitchTok != nil {
		resp.HasTwitch = true
		id := twitchTok.UserID
		login := twitchTok.Login
		resp.TwitchID = &id
		resp.TwitchName = &login
	}
	if streamlabsTok != nil {
		resp.HasStreamlabs = true
		id := fmt.Sprintf("%d", streamlabsTok.UserID)
		login := streamlabsTok.Login
		resp.StreamlabsID = &id
		resp.StreamlabsName = &login
	}

	data, err := protocol.Encode(protocol.TypeConnectResponse, resp)
	if err != nil {
		h.app.Logger.Error("failed to encode connect response", "error", err)
		return
	}
	for _, sender := range entry.Broadcast(data) {
		h.app.Logger.Warn("dropped connect response to backpressured sibling", "sender", sender)
	}
}

func writeSuccessPage(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "<html><body><p>%s</p></body></html>", message)
}
