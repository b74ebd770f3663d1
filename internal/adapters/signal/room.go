package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/dkeye/Chat/internal/protocol"
	"github.com/rs/zerolog/log"
)

// oracleTimeout bounds a single membership or authorization round trip.
const oracleTimeout = 5 * time.Second

func (ctl *SignalWSController) handleJoin(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
	env protocol.Envelope,
	data []byte,
) {
	var p protocol.JoinRequest
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendJSON(conn, protocol.NewAckErr(env.Seq, "", domain.ErrBadPayload))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, oracleTimeout)
	defer cancel()

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room_id", string(p.RoomID)).Str("user_id", string(p.UserID)).Msg("join")
	if err := ctl.Orch.Join(ctx, sid, p.RoomID, p.UserID); err != nil {
		ctl.sendJSON(conn, protocol.NewAckErr(p.Seq, "", err))
		return
	}
	ctl.sendJSON(conn, protocol.NewAckOK(p.Seq, "", nil))
}

// handleLeave exits the current room; the connection stays open.
func (ctl *SignalWSController) handleLeave(
	sid core.SessionID,
	conn *WsSignalConn,
	env protocol.Envelope,
) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	ctl.Orch.Leave(sid)
	ctl.sendJSON(conn, protocol.NewAckOK(env.Seq, "", nil))
}

func (ctl *SignalWSController) handleAdminJoinAll(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.AdminJoinAllRequest
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, domain.ErrBadPayload)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, oracleTimeout)
	defer cancel()

	snapshot, err := ctl.Orch.AdminJoinAll(ctx, sid, p.Token)
	if err != nil {
		ctl.sendError(conn, err)
		return
	}
	ctl.sendJSON(conn, protocol.NewAdminPresence(snapshot))
}
