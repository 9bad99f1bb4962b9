package core

import (
	"sync"

	"github.com/dkeye/listenparty/internal/domain"
)

// memberSession implements MemberSession by pairing meta + transport.
type memberSession struct {
	sid  SessionID
	conn SignalConnection

	mu   sync.RWMutex
	meta domain.Participant
}

func NewMemberSession(sid SessionID, meta domain.Participant, conn SignalConnection) MemberSession {
	meta.Attributes = copyAttrs(meta.Attributes)
	return &memberSession{sid: sid, meta: meta, conn: conn}
}

func (m *memberSession) SID() SessionID           { return m.sid }
func (m *memberSession) Signal() SignalConnection { return m.conn }

func (m *memberSession) Participant() domain.Participant {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p := m.meta
	p.Attributes = copyAttrs(m.meta.Attributes)
	return p
}

func (m *memberSession) MergeAttributes(changed map[string]string) domain.Participant {
	m.mu.Lock()
	if m.meta.Attributes == nil {
		m.meta.Attributes = make(map[string]string, len(changed))
	}
	for k, v := range changed {
		if v == "" {
			delete(m.meta.Attributes, k)
			continue
		}
		m.meta.Attributes[k] = v
	}
	m.mu.Unlock()
	return m.Participant()
}

func copyAttrs(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
