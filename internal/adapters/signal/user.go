package signal

import (
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/dkeye/Chat/internal/protocol"
)

func (ctl *SignalWSController) handleWhoAmI(
	sid core.SessionID,
	conn *WsSignalConn,
) {
	resp := struct {
		Type    string        `json:"type"`
		Session string        `json:"session"`
		UserID  domain.UserID `json:"userId,omitempty"`
		RoomID  domain.RoomID `json:"roomId,omitempty"`
		Admin   bool          `json:"admin,omitempty"`
	}{
		Type:    protocol.TypeWhoAmI,
		Session: string(sid),
	}
	if s, ok := ctl.Orch.Registry.Get(sid); ok {
		resp.UserID = s.User
		resp.RoomID = s.Room
		resp.Admin = s.Admin
	}
	ctl.sendJSON(conn, resp)
}
