package orchestrator

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/acmdf/vrctv/internal/protocol"
)

func (o *Orchestrator) writeEncoded(conn *websocket.Conn, typ string, payload any) {
	data, err := protocol.Encode(typ, payload)
	if err != nil {
		o.Logger.Error("failed to encode outbound message", "type", typ, "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		o.Logger.Warn("failed to write outbound message", "type", typ, "error", err)
	}
}

// notifyOnVersionMismatch issues a Notify frame when the client reports
// a version different from the configured one. An empty clientVersion
// means the client did not report one, in which case no comparison is
// made.
func (o *Orchestrator) notifyOnVersionMismatch(conn *websocket.Conn, clientVersion string) {
	if clientVersion == "" || clientVersion == o.ClientVersion {
		return
	}
	o.writeEncoded(conn, protocol.TypeNotify, protocol.Notify{
		Title:   "Update available",
		Message: fmt.Sprintf("Server expects client version %s, got %s", o.ClientVersion, clientVersion),
	})
}

// hydrateFromStore looks up persisted provider tokens for state and,
// where present, runs refresh_or_validate behind the relevant admission
// limiter before storing the result in the connection's context.
func (o *Orchestrator) hydrateFromStore(ctx context.Context, st *connState, state string) error {
	twitchRow, err := o.Store.GetTwitchKeyByState(ctx, state)
	if err != nil {
		return fmt.Errorf("look up twitch key: %w", err)
	}
	if twitchRow != nil {
		if err := o.Limiters.Twitch.Wait(ctx); err != nil {
			return err
		}
		tok, err := o.TwitchOAuth.RefreshOrValidate(ctx, twitchRow.Authentication, twitchRow.Refresh)
		if err != nil {
			o.Logger.Warn("failed to refresh twitch token on connect", "error", err)
		} else {
			st.ctx.SetTwitchToken(tok)
		}
	}

	streamlabsRow, err := o.Store.GetStreamlabsKeyByState(ctx, state)
	if err != nil {
		return fmt.Errorf("look up streamlabs key: %w", err)
	}
	if streamlabsRow != nil {
		if err := o.Limiters.Streamlabs.Wait(ctx); err != nil {
			return err
		}
		tok, err := o.StreamlabsOAuth.RefreshOrValidate(ctx, streamlabsRow.Authentication, streamlabsRow.Refresh)
		if err != nil {
			o.Logger.Warn("failed to refresh streamlabs token on connect", "error", err)
		} else {
			st.ctx.SetStreamlabsToken(tok)
		}
	}

	return nil
}

func (o *Orchestrator) buildConnectResponse(st *connState) protocol.ConnectResponse {
	twitchTok, streamlabsTok := st.ctx.Snapshot()
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
	return resp
}
