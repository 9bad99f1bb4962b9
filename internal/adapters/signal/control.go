package signal

import "github.com/dkeye/listenparty/internal/room"

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
) {
	ctl.sendJSON(conn, room.Envelope{Type: room.TypePong})
}
