package signal

import (
	"github.com/dkeye/listenparty/internal/core"
	"github.com/dkeye/listenparty/internal/domain"
	"github.com/dkeye/listenparty/internal/room"
	"github.com/rs/zerolog/log"
)

const (
	errRecipientNotFound     = "recipient not found"
	errRecipientDisconnected = "recipient disconnected"
)

// rpcKey identifies a call as the caller named it. Ids are only unique per
// caller, so the caller's identity is part of the key.
type rpcKey struct {
	room   domain.RoomName
	caller domain.Identity
	id     string
}

type pendingRPC struct {
	callerSID core.SessionID
	calleeSID core.SessionID
	method    string
}

func (ctl *SignalWSController) handleRPCRequest(sess core.MemberSession, conn *WsSignalConn, env room.Envelope) {
	roomName, _, ok := ctl.Orch.Registry.RoomOf(sess.SID())
	if !ok {
		return
	}
	self := sess.Participant()
	reply := func(msg string) {
		ctl.sendJSON(conn, room.Envelope{Type: room.TypeRPCResponse, ID: env.ID, Error: msg})
	}

	if env.ID == "" || env.Method == "" || env.Destination == "" {
		reply("bad_payload")
		return
	}
	if !ctl.Limiter.Allow(roomName, self.Identity) {
		log.Warn().Str("module", "signal").Str("identity", string(self.Identity)).Msg("rpc rate limited")
		reply("rate_limited")
		return
	}

	r, ok := ctl.Orch.Rooms.Get(roomName)
	if !ok {
		reply(errRecipientNotFound)
		return
	}
	callee, ok := r.Lookup(env.Destination)
	if !ok {
		reply(errRecipientNotFound)
		return
	}

	key := rpcKey{room: roomName, caller: self.Identity, id: env.ID}
	ctl.rpcMu.Lock()
	if _, dup := ctl.rpcs[key]; dup {
		ctl.rpcMu.Unlock()
		reply("duplicate_id")
		return
	}
	ctl.rpcs[key] = pendingRPC{callerSID: sess.SID(), calleeSID: callee.SID(), method: env.Method}
	ctl.rpcMu.Unlock()

	log.Debug().
		Str("module", "signal").
		Str("caller", string(self.Identity)).
		Str("destination", string(env.Destination)).
		Str("method", env.Method).
		Msg("rpc request")

	err := callee.Signal().TrySend(encode(room.Envelope{
		Type:    room.TypeRPCRequest,
		ID:      env.ID,
		Caller:  self.Identity,
		Method:  env.Method,
		Payload: env.Payload,
	}))
	if err != nil {
		ctl.rpcMu.Lock()
		delete(ctl.rpcs, key)
		ctl.rpcMu.Unlock()
		reply(errRecipientNotFound)
	}
}

func (ctl *SignalWSController) handleRPCResponse(sess core.MemberSession, conn *WsSignalConn, env room.Envelope) {
	roomName, _, ok := ctl.Orch.Registry.RoomOf(sess.SID())
	if !ok {
		return
	}
	key := rpcKey{room: roomName, caller: env.Destination, id: env.ID}

	ctl.rpcMu.Lock()
	p, ok := ctl.rpcs[key]
	if ok && p.calleeSID == sess.SID() {
		delete(ctl.rpcs, key)
	} else {
		ok = false
	}
	ctl.rpcMu.Unlock()

	if !ok {
		log.Warn().Str("module", "signal").Str("id", env.ID).Str("sid", string(sess.SID())).Msg("response to unknown rpc")
		ctl.sendError(conn, env.ID, "unknown_rpc")
		return
	}
	err := ctl.Orch.SendToSID(p.callerSID, encode(room.Envelope{
		Type:    room.TypeRPCResponse,
		ID:      env.ID,
		Payload: env.Payload,
		Error:   env.Error,
	}))
	if err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("method", p.method).Msg("rpc caller gone")
	}
}

// failRPCs answers every call still waiting on sess and forgets the calls
// sess made.
func (ctl *SignalWSController) failRPCs(sess core.MemberSession, roomName domain.RoomName) {
	type orphan struct {
		id     string
		caller core.SessionID
	}
	var orphans []orphan

	ctl.rpcMu.Lock()
	for key, p := range ctl.rpcs {
		switch sess.SID() {
		case p.callerSID:
			delete(ctl.rpcs, key)
		case p.calleeSID:
			delete(ctl.rpcs, key)
			orphans = append(orphans, orphan{id: key.id, caller: p.callerSID})
		}
	}
	ctl.rpcMu.Unlock()

	for _, o := range orphans {
		_ = ctl.Orch.SendToSID(o.caller, encode(room.Envelope{
			Type:  room.TypeRPCResponse,
			ID:    o.id,
			Error: errRecipientDisconnected,
		}))
	}
	if len(orphans) > 0 {
		log.Info().Str("module", "signal").Str("room", string(roomName)).Int("calls", len(orphans)).Msg("failed pending rpcs")
	}
}
