package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Chat/internal/app/orch"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/dkeye/Chat/internal/protocol"
	"github.com/rs/zerolog/log"
)

// handleSend acknowledges a send with the confirmed message or the reason it
// was rejected. The broadcast reaches the sender separately.
func (ctl *SignalWSController) handleSend(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
	env protocol.Envelope,
	data []byte,
) {
	var p protocol.SendRequest
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad send payload")
		ctl.sendJSON(conn, protocol.NewAckErr(env.Seq, "", domain.ErrBadPayload))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, oracleTimeout)
	defer cancel()

	msg, err := ctl.Orch.Send(ctx, sid, orch.SendRequest{
		RoomID:   p.RoomID,
		SenderID: p.SenderID,
		Content:  p.Content,
		ClientID: p.TempID,
	})
	if err != nil {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Str("code", domain.CodeOf(err)).Err(err).Msg("send rejected")
		ctl.sendJSON(conn, protocol.NewAckErr(p.Seq, p.TempID, err))
		return
	}
	ctl.sendJSON(conn, protocol.NewAckOK(p.Seq, p.TempID, msg))
}
