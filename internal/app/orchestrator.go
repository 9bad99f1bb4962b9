package app

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/listenparty/internal/core"
	"github.com/dkeye/listenparty/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoSuchRoom        = errors.New("room not found")
	ErrNoSuchParticipant = errors.New("participant not found")
)

// Orchestrator owns room membership and fan-out. Transport adapters call
// it; it never touches a socket directly.
type Orchestrator struct {
	Registry *Registry
	Rooms    core.RoomManager
	Policy   Policy

	// membership changes are serialized so an emptied room is never
	// stopped under a member that is joining it
	mu sync.Mutex
}

// Greeter runs under the membership lock before a new member becomes
// visible. It gets the current members; the frame it returns is broadcast
// to them once the new member is in.
type Greeter func(members []domain.Participant) (announce core.Frame)

// Join binds sess to room. A member already present with the same identity
// is displaced and its connection canceled.
func (o *Orchestrator) Join(roomName domain.RoomName, sess core.MemberSession, cancel context.CancelFunc, greet Greeter) core.RoomService {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.Registry.Bind(roomName, sess, cancel)
	room := o.Rooms.GetOrCreate(roomName)
	var announce core.Frame
	if greet != nil {
		id := sess.Participant().Identity
		members := room.Participants()
		others := members[:0]
		for _, p := range members {
			if p.Identity != id {
				others = append(others, p)
			}
		}
		announce = greet(others)
	}
	displaced := room.AddMember(sess)
	if announce != nil {
		o.applyPolicy(room, room.Broadcast(sess.SID(), announce))
	}
	if displaced != nil {
		log.Info().
			Str("module", "app.orch").
			Str("sid", string(displaced.SID())).
			Str("identity", string(displaced.Participant().Identity)).
			Msg("displaced by newer connection")
		o.Registry.Cancel(displaced.SID())
	}
	return room
}

// Leave drops sid from its room. ok is false when the member was already
// gone, e.g. displaced by a newer connection.
func (o *Orchestrator) Leave(sid core.SessionID) (left domain.Participant, roomName domain.RoomName, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	roomName, sess, bound := o.Registry.Unbind(sid)
	if !bound {
		return domain.Participant{}, "", false
	}
	room, exists := o.Rooms.Get(roomName)
	if !exists {
		return sess.Participant(), roomName, false
	}
	ok = room.RemoveMember(sid)
	if room.MemberCount() == 0 {
		o.Rooms.StopRoom(roomName)
	}
	return sess.Participant(), roomName, ok
}

// Publish fans data out to everyone in sid's room except sid.
func (o *Orchestrator) Publish(sid core.SessionID, data core.Frame) {
	roomName, _, ok := o.Registry.RoomOf(sid)
	if !ok {
		return
	}
	room, ok := o.Rooms.Get(roomName)
	if !ok {
		return
	}
	o.applyPolicy(room, room.Broadcast(sid, data))
}

// PublishRoom fans data out to every member of roomName.
func (o *Orchestrator) PublishRoom(roomName domain.RoomName, data core.Frame) {
	room, ok := o.Rooms.Get(roomName)
	if !ok {
		return
	}
	o.applyPolicy(room, room.Broadcast("", data))
}

// SendTo delivers data to one participant of roomName.
func (o *Orchestrator) SendTo(roomName domain.RoomName, to domain.Identity, data core.Frame) error {
	room, ok := o.Rooms.Get(roomName)
	if !ok {
		return ErrNoSuchRoom
	}
	ms, ok := room.Lookup(to)
	if !ok {
		return ErrNoSuchParticipant
	}
	if err := ms.Signal().TrySend(data); err != nil {
		o.applyPolicy(room, core.PublishResult{Dropped: []core.MemberSession{ms}})
		return err
	}
	return nil
}

// SendToSID delivers data to a connection regardless of its room.
func (o *Orchestrator) SendToSID(sid core.SessionID, data core.Frame) error {
	ms, ok := o.Registry.Session(sid)
	if !ok {
		return ErrNoSuchParticipant
	}
	return ms.Signal().TrySend(data)
}

func (o *Orchestrator) KickBySID(sid core.SessionID) bool {
	return o.Registry.Cancel(sid)
}

// EvictRoom cancels every connection in name.
func (o *Orchestrator) EvictRoom(name domain.RoomName) {
	for _, sid := range o.Registry.InRoom(name) {
		o.KickBySID(sid)
	}
}

func (o *Orchestrator) applyPolicy(room core.RoomService, res core.PublishResult) {
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case KickMember:
			log.Warn().Str("module", "app.orch").Str("sid", string(slow.SID())).Str("room", string(room.Name())).Msg("kicking slow member")
			o.KickBySID(slow.SID())
		case MarkSlow, DropFrame, NoAction:
		}
	}
}
