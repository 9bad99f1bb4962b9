package app

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/listenparty/internal/core"
	"github.com/dkeye/listenparty/internal/domain"
	"github.com/rs/zerolog/log"
)

// binding ties one live websocket connection to the room it joined.
type binding struct {
	room   domain.RoomName
	member core.MemberSession
	stop   context.CancelFunc
	since  time.Time
}

// Registry knows every live connection by session id, whichever room it
// is in. Rooms know their members by identity; the registry is how a
// connection finds its way back to a room.
type Registry struct {
	mu    sync.RWMutex
	conns map[core.SessionID]binding
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[core.SessionID]binding)}
}

// Bind records that member joined room. stop tears its connection down.
func (r *Registry) Bind(room domain.RoomName, member core.MemberSession, stop context.CancelFunc) {
	r.mu.Lock()
	r.conns[member.SID()] = binding{room: room, member: member, stop: stop, since: time.Now()}
	n := len(r.conns)
	r.mu.Unlock()
	log.Debug().
		Str("module", "app.registry").
		Str("sid", string(member.SID())).
		Str("identity", string(member.Participant().Identity)).
		Str("room", string(room)).
		Int("connections", n).
		Msg("connection bound")
}

// Unbind forgets sid and returns what it was bound to.
func (r *Registry) Unbind(sid core.SessionID) (domain.RoomName, core.MemberSession, bool) {
	r.mu.Lock()
	b, ok := r.conns[sid]
	delete(r.conns, sid)
	r.mu.Unlock()
	if !ok {
		return "", nil, false
	}
	log.Debug().
		Str("module", "app.registry").
		Str("sid", string(sid)).
		Str("room", string(b.room)).
		Dur("connected_for", time.Since(b.since)).
		Msg("connection unbound")
	return b.room, b.member, true
}

func (r *Registry) Session(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.conns[sid]
	return b.member, ok
}

func (r *Registry) RoomOf(sid core.SessionID) (domain.RoomName, core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.conns[sid]
	if !ok {
		return "", nil, false
	}
	return b.room, b.member, true
}

// InRoom lists the session ids bound to room, including connections that a
// newer one with the same identity has displaced but not yet closed.
func (r *Registry) InRoom(room domain.RoomName) []core.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []core.SessionID
	for sid, b := range r.conns {
		if b.room == room {
			out = append(out, sid)
		}
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Cancel stops sid's connection. The transport unbinds it on its way out.
func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	b, ok := r.conns[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if b.stop != nil {
		b.stop()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(b.room)).Msg("connection canceled")
	return true
}
