// Package orchestrator drives the per-WebSocket loop that multiplexes
// downstream client frames, this socket's own fanout mailbox, and the
// shared upstream Twitch/Streamlabs sessions for its state token.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/acmdf/vrctv/internal/protocol"
	"github.com/acmdf/vrctv/internal/registry"
	"github.com/acmdf/vrctv/internal/rewards"
	"github.com/acmdf/vrctv/internal/streamlabs"
	"github.com/acmdf/vrctv/internal/tokenstore"
	"github.com/acmdf/vrctv/internal/twitch"
)

// Orchestrator holds the dependencies shared by every per-connection
// loop: the registry, the token store, both providers' OAuth clients,
// the reward reconciler, and the admission limiters.
type Orchestrator struct {
	Registry        *registry.Registry
	Store           *tokenstore.Store
	TwitchOAuth     *twitch.OAuthClient
	StreamlabsOAuth *streamlabs.OAuthClient
	Reconciler      *rewards.Reconciler
	Limiters        *AdmissionLimiters
	ClientVersion   string
	Logger          *slog.Logger
}

// New builds an Orchestrator.
func New(
	reg *registry.Registry,
	store *tokenstore.Store,
	twitchOAuth *twitch.OAuthClient,
	streamlabsOAuth *streamlabs.OAuthClient,
	reconciler *rewards.Reconciler,
	limiters *AdmissionLimiters,
	clientVersion string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		Registry:        reg,
		Store:           store,
		TwitchOAuth:     twitchOAuth,
		StreamlabsOAuth: streamlabsOAuth,
		Reconciler:      reconciler,
		Limiters:        limiters,
		ClientVersion:   clientVersion,
		Logger:          logger,
	}
}

// connState is the per-connection mutable state the loop closes over.
type connState struct {
	ctx         *registry.ClientContext
	entry       *registry.ClientEntry
	sender      *registry.FanoutSender
	isOwner     bool
}

type twitchStep struct {
	cont  bool
	event *twitch.Event
	err   error
}

type streamlabsStep struct {
	cont    bool
	payload *streamlabs.Payload
	err     error
}

// ServeWS drives one downstream WebSocket end to end: reads until the
// connection registers a state token, then runs the biased multiplexing
// loop described in §4.H until either side closes.
func (o *Orchestrator) ServeWS(parent context.Context, conn *websocket.Conn, remoteAddr string) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	defer conn.Close()

	st := &connState{ctx: registry.NewClientContext(remoteAddr)}
	defer o.teardown(st)

	downstreamCh := make(chan []byte)
	downstreamErrCh := make(chan error, 1)
	go o.readPump(conn, downstreamCh, downstreamErrCh)

	var twitchCh chan twitchStep
	var streamlabsCh chan streamlabsStep

	for {
		// Register with the Registry as soon as a state token is known, and
		// only once: later loop turns must not re-register or reconstruct
		// upstream sessions.
		if st.ctx.StateToken != "" && st.entry == nil {
			o.register(ctx, st)
			if st.isOwner {
				if st.entry.TwitchSession != nil {
					twitchCh = make(chan twitchStep, 1)
					go o.pumpTwitch(ctx, st.entry, twitchCh)
				}
				if st.entry.StreamlabsSession != nil {
					streamlabsCh = make(chan streamlabsStep, 1)
					go o.pumpStreamlabs(ctx, st.entry, streamlabsCh)
				}
			}
		}

		var fanoutCh <-chan []byte
		if st.sender != nil {
			fanoutCh = st.sender.C()
		}

		stop := o.biasedTurn(ctx, conn, st, downstreamCh, downstreamErrCh, fanoutCh, streamlabsCh, twitchCh)
		if stop {
			return
		}
	}
}

// biasedTurn runs exactly one iteration of the a→b→c→d priority order.
// Go's select has no native priority, so readiness is probed
// non-blocking in priority order first; only if nothing is immediately
// ready does it fall back to a single blocking multi-way select.
func (o *Orchestrator) biasedTurn(
	ctx context.Context,
	conn *websocket.Conn,
	st *connState,
	downstreamCh <-chan []byte,
	downstreamErrCh <-chan error,
	fanoutCh <-chan []byte,
	streamlabsCh <-chan streamlabsStep,
	twitchCh <-chan twitchStep,
) (stop bool) {
	select {
	case data := <-downstreamCh:
		return o.handleDownstream(ctx, conn, st, data)
	default:
	}
	select {
	case err := <-downstreamErrCh:
		o.Logger.Info("downstream closed", "error", err)
		return true
	default:
	}
	select {
	case msg := <-fanoutCh:
		return o.handleFanout(conn, msg)
	default:
	}
	select {
	case step := <-streamlabsCh:
		return o.handleStreamlabsStep(conn, st, step)
	default:
	}
	select {
	case step := <-twitchCh:
		return o.handleTwitchStep(conn, st, step)
	default:
	}

	select {
	case data := <-downstreamCh:
		return o.handleDownstream(ctx, conn, st, data)
	case err := <-downstreamErrCh:
		o.Logger.Info("downstream closed", "error", err)
		return true
	case msg := <-fanoutCh:
		return o.handleFanout(conn, msg)
	case step := <-streamlabsCh:
		return o.handleStreamlabsStep(conn, st, step)
	case step := <-twitchCh:
		return o.handleTwitchStep(conn, st, step)
	case <-ctx.Done():
		return true
	}
}

func (o *Orchestrator) readPump(conn *websocket.Conn, out chan<- []byte, errOut chan<- error) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			errOut <- err
			return
		}
		switch msgType {
		case websocket.TextMessage:
			out <- data
		case websocket.BinaryMessage:
			errOut <- fmt.Errorf("binary frames are not supported")
			return
		case websocket.CloseMessage:
			errOut <- fmt.Errorf("closed")
			return
		default:
			// Ping/Pong are handled by gorilla/websocket's default handlers.
		}
	}
}

func (o *Orchestrator) handleFanout(conn *websocket.Conn, msg []byte) (stop bool) {
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		o.Logger.Warn("failed to forward fanout message", "error", err)
		return true
	}
	return false
}

func (o *Orchestrator) handleStreamlabsStep(conn *websocket.Conn, st *connState, step streamlabsStep) (stop bool) {
	if step.err != nil {
		o.writeError(conn, -1, "streamlabs", step.err.Error())
	}
	if step.payload != nil {
		o.broadcastStreamlabsEvent(st, step.payload)
	}
	if !step.cont {
		o.Logger.Info("streamlabs session ended")
		return true
	}
	return false
}

func (o *Orchestrator) handleTwitchStep(conn *websocket.Conn, st *connState, step twitchStep) (stop bool) {
	if step.err != nil {
		o.writeError(conn, -1, "twitch", step.err.Error())
	}
	if step.event != nil {
		o.translateAndBroadcast(st, step.event)
	}
	if !step.cont {
		o.Logger.Info("twitch session ended")
		return true
	}
	return false
}

func (o *Orchestrator) pumpTwitch(ctx context.Context, entry *registry.ClientEntry, out chan<- twitchStep) {
	for {
		cont, event, err := entry.TwitchSession.Run(ctx)
		select {
		case out <- twitchStep{cont: cont, event: event, err: err}:
		case <-ctx.Done():
			return
		}
		if !cont || err != nil {
			return
		}
	}
}

func (o *Orchestrator) pumpStreamlabs(ctx context.Context, entry *registry.ClientEntry, out chan<- streamlabsStep) {
	for {
		cont, payload, err := entry.StreamlabsSession.Run(ctx)
		select {
		case out <- streamlabsStep{cont: cont, payload: payload, err: err}:
		case <-ctx.Done():
			return
		}
		if !cont || err != nil {
			return
		}
	}
}

// register performs the Registry.Join call exactly once per connection,
// storing whether this connection became the upstream sessions' owner.
func (o *Orchestrator) register(ctx context.Context, st *connState) {
	entry, sender, created := o.Registry.Join(st.ctx.StateToken, st.ctx, func() (*twitch.Session, *streamlabs.Connection) {
		return o.buildUpstreamSessions(ctx, st.ctx)
	})
	st.entry = entry
	st.sender = sender
	st.isOwner = created
}

func (o *Orchestrator) buildUpstreamSessions(ctx context.Context, clientCtx *registry.ClientContext) (*twitch.Session, *streamlabs.Connection) {
	twitchTok, streamlabsTok := clientCtx.Snapshot()

	var twitchSession *twitch.Session
	if twitchTok != nil {
		twitchSession = twitch.NewSession(o.TwitchOAuth, twitchTok, o.Logger)
	}

	var streamlabsConn *streamlabs.Connection
	if streamlabsTok != nil {
		conn, err := streamlabs.Connect(ctx, streamlabsTok.SocketToken, o.Logger)
		if err != nil {
			o.Logger.Error("failed to connect streamlabs socket", "error", err)
		} else {
			streamlabsConn = conn
		}
	}

	return twitchSession, streamlabsConn
}

func (o *Orchestrator) teardown(st *connState) {
	if st.entry == nil || st.sender == nil {
		return
	}
	empty := o.Registry.Leave(st.ctx.StateToken, st.entry, st.sender)
	if empty {
		if st.entry.TwitchSession != nil {
			_ = st.entry.TwitchSession.Disconnect()
		}
		if st.entry.StreamlabsSession != nil {
			_ = st.entry.StreamlabsSession.Disconnect()
		}
	}
}

func (o *Orchestrator) writeError(conn *websocket.Conn, requestID int64, source, message string) {
	data, err := protocol.Encode(protocol.TypeError, protocol.ErrorMessage{
		RequestID: requestID,
		Source:    source,
		Message:   message,
	})
	if err != nil {
		o.Logger.Error("failed to encode error message", "error", err)
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

func newStateToken() string {
	return uuid.NewString()
}
