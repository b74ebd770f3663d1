package signal

import "github.com/dkeye/Chat/internal/protocol"

// handlePing answers an application-level ping with the same seq.
func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
	env protocol.Envelope,
) {
	ctl.sendJSON(conn, protocol.Envelope{Type: protocol.TypePong, Seq: env.Seq})
}
