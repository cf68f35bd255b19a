package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/acmdf/vrctv/internal/protocol"
)

// handleDownstream parses one client frame and dispatches it. Parse
// failures are reported as an Error frame with request_id=-1 per §7;
// the loop continues rather than tearing down the connection.
func (o *Orchestrator) handleDownstream(ctx context.Context, conn *websocket.Conn, st *connState, data []byte) (stop bool) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		o.writeError(conn, -1, "server", fmt.Sprintf("malformed frame: %v", err))
		return false
	}

	switch env.Type {
	case protocol.TypeCodeRequest:
		return o.handleCodeRequest(ctx, conn, st, data)
	case protocol.TypeConnect:
		return o.handleConnect(ctx, conn, st, data)
	case protocol.TypeTwitchTrigger:
		return o.handleTwitchTrigger(ctx, conn, st, data)
	default:
		o.writeError(conn, -1, "server", fmt.Sprintf("unrecognised frame type %q", env.Type))
		return false
	}
}

type codeRequestFrame struct {
	protocol.Envelope
	protocol.CodeRequest
}

func (o *Orchestrator) handleCodeRequest(ctx context.Context, conn *websocket.Conn, st *connState, data []byte) (stop bool) {
	var frame codeRequestFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		o.writeError(conn, -1, "server", err.Error())
		return false
	}

	if err := o.Limiters.NewClient.Wait(ctx); err != nil {
		o.writeError(conn, -1, "server", "admission wait cancelled")
		return true
	}

	state := newStateToken()
	st.ctx.StateToken = state
	if err := o.Store.InsertOrIgnoreActiveKey(ctx, state); err != nil {
		o.writeError(conn, -1, "server", err.Error())
		return false
	}

	o.writeEncoded(conn, protocol.TypeCodeResponse, protocol.CodeResponse{StateToken: state})
	o.notifyOnVersionMismatch(conn, frame.ClientVersion)
	return false
}

type connectFrame struct {
	protocol.Envelope
	ConnectRequest protocol.ConnectRequest `json:"ConnectRequest"`
}

func (o *Orchestrator) handleConnect(ctx context.Context, conn *websocket.Conn, st *connState, data []byte) (stop bool) {
	var frame connectFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		o.writeError(conn, -1, "server", err.Error())
		return false
	}
	req := frame.ConnectRequest

	st.ctx.StateToken = req.StateToken
	if err := o.Store.InsertOrIgnoreActiveKey(ctx, req.StateToken); err != nil {
		o.writeError(conn, -1, "server", err.Error())
		return false
	}

	if existing, ok := o.Registry.Lookup(req.StateToken); ok && existing.Context != nil {
		// A Client Entry already exists for this token: cheap attach by
		// copying the owner's already-hydrated tokens rather than
		// re-validating against either provider.
		twitchTok, streamlabsTok := existing.Context.Snapshot()
		st.ctx.SetTwitchToken(twitchTok)
		st.ctx.SetStreamlabsToken(streamlabsTok)
	} else {
		if err := o.hydrateFromStore(ctx, st, req.StateToken); err != nil {
			o.writeError(conn, -1, "server", err.Error())
			return false
		}
	}

	o.writeEncoded(conn, protocol.TypeConnectResponse, o.buildConnectResponse(st))
	o.notifyOnVersionMismatch(conn, req.ClientVersion)
	return false
}
