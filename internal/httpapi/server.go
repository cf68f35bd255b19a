// Package httpapi assembles the HTTP handler: the WebSocket upgrade
// route, the static greeting, and the OAuth authorize/callback surface
// for both providers.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/acmdf/vrctv/internal/orchestrator"
	"github.com/acmdf/vrctv/internal/registry"
	"github.com/acmdf/vrctv/internal/streamlabs"
	"github.com/acmdf/vrctv/internal/tokenstore"
	"github.com/acmdf/vrctv/internal/twitch"
)

// App holds every dependency needed to build the HTTP handler, so both
// main() and tests can build the same handler chain without route
// drift.
type App struct {
	Registry        *registry.Registry
	Store           *tokenstore.Store
	Orchestrator    *orchestrator.Orchestrator
	TwitchOAuth     *twitch.OAuthClient
	StreamlabsOAuth *streamlabs.OAuthClient
	Logger          *slog.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler builds the complete HTTP handler with all routes registered.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	h := &handlers{app: a}

	mux.HandleFunc("GET /{$}", h.handleRoot)
	mux.HandleFunc("GET /ws", h.handleWebSocket)

	mux.HandleFunc("GET /twitch/auth/{state}", h.handleTwitchAuthorize)
	mux.HandleFunc("GET /twitch/callback", h.handleTwitchCallback)

	mux.HandleFunc("GET /streamlabs/auth/{state}", h.handleStreamlabsAuthorize)
	mux.HandleFunc("GET /streamlabs/callback", h.handleStreamlabsCallback)

	return mux
}

type handlers struct {
	app *App
}

func (h *handlers) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("vrctv gateway is running"))
}

func (h *handlers) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.app.Logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	h.app.Orchestrator.ServeWS(r.Context(), conn, r.RemoteAddr)
}
