package core

import (
	"sort"
	"sync"

	"github.com/dkeye/listenparty/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	name       domain.RoomName
	mu         sync.RWMutex
	bySID      map[SessionID]MemberSession
	byIdentity map[domain.Identity]SessionID
}

func NewRoomService(name domain.RoomName) RoomService {
	return &roomImpl{
		name:       name,
		bySID:      make(map[SessionID]MemberSession),
		byIdentity: make(map[domain.Identity]SessionID),
	}
}

func (r *roomImpl) Name() domain.RoomName { return r.name }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *roomImpl) AddMember(ms MemberSession) MemberSession {
	id := ms.Participant().Identity
	r.mu.Lock()
	defer r.mu.Unlock()

	var displaced MemberSession
	if old, ok := r.byIdentity[id]; ok && old != ms.SID() {
		displaced = r.bySID[old]
		delete(r.bySID, old)
	}
	r.bySID[ms.SID()] = ms
	r.byIdentity[id] = ms.SID()
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("sid", string(ms.SID())).Str("identity", string(id)).Bool("displaced", displaced != nil).Msg("member added")
	return displaced
}

func (r *roomImpl) RemoveMember(sid SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.bySID[sid]
	if !ok {
		return false
	}
	id := ms.Participant().Identity
	if r.byIdentity[id] == sid {
		delete(r.byIdentity, id)
	}
	delete(r.bySID, sid)
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("sid", string(sid)).Msg("member removed")
	return true
}

func (r *roomImpl) Lookup(id domain.Identity) (MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.byIdentity[id]
	if !ok {
		return nil, false
	}
	ms, ok := r.bySID[sid]
	return ms, ok
}

func (r *roomImpl) Broadcast(from SessionID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for sid, m := range r.bySID {
		if from != "" && sid == from {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

// Participants is ordered by identity.
func (r *roomImpl) Participants() []domain.Participant {
	r.mu.RLock()
	out := make([]domain.Participant, 0, len(r.bySID))
	for _, ms := range r.bySID {
		out = append(out, ms.Participant())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}
