package core

import "github.com/dkeye/listenparty/internal/domain"

// Frame is one encoded envelope ready for the wire.
type Frame []byte

type SessionID string

// SignalConnection abstracts the messaging transport of one member.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// MemberSession binds a participant to its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	SID() SessionID
	// Participant returns a snapshot; attributes are copied.
	Participant() domain.Participant
	// MergeAttributes applies changed (empty value deletes) and returns
	// the updated snapshot.
	MergeAttributes(changed map[string]string) domain.Participant
	Signal() SignalConnection
}

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Name() domain.RoomName
	MemberCount() int
	Participants() []domain.Participant

	// AddMember stores ms and returns the session it displaced when the
	// identity was already present.
	AddMember(ms MemberSession) (displaced MemberSession)
	RemoveMember(sid SessionID) bool
	Lookup(id domain.Identity) (MemberSession, bool)
	// Broadcast sends to everyone except the member whose sid is from.
	// An empty from reaches the whole room.
	Broadcast(from SessionID, data Frame) PublishResult
}

type RoomInfo struct {
	Name         domain.RoomName `json:"name"`
	Participants int             `json:"participants"`
}

type RoomManager interface {
	GetOrCreate(name domain.RoomName) RoomService
	Get(name domain.RoomName) (RoomService, bool)
	List() []RoomInfo
	StopRoom(name domain.RoomName)
}
