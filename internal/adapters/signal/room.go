package signal

import (
	"github.com/dkeye/listenparty/internal/app"
	"github.com/dkeye/listenparty/internal/core"
	"github.com/dkeye/listenparty/internal/domain"
	"github.com/dkeye/listenparty/internal/room"
	"github.com/rs/zerolog/log"
)

// greeter queues the joined envelope before the member becomes visible, so
// it is always the first frame the client reads.
func (ctl *SignalWSController) greeter(sess core.MemberSession, roomName domain.RoomName) app.Greeter {
	return func(others []domain.Participant) core.Frame {
		self := sess.Participant()
		ctl.sendJSON(sess.Signal(), room.Envelope{
			Type:         room.TypeJoined,
			Identity:     self.Identity,
			Room:         roomName,
			Participant:  &self,
			Participants: others,
		})
		log.Info().
			Str("module", "signal").
			Str("sid", string(sess.SID())).
			Str("room", string(roomName)).
			Bool("host", self.IsHost()).
			Int("others", len(others)).
			Msg("join")
		return encode(room.Envelope{Type: room.TypeParticipantJoined, Participant: &self})
	}
}

// handleDisconnect removes the member and tells the room. A member
// displaced by a newer connection with the same identity leaves silently.
func (ctl *SignalWSController) handleDisconnect(sess core.MemberSession) {
	left, roomName, ok := ctl.Orch.Leave(sess.SID())
	ctl.failRPCs(sess, roomName)
	if !ok {
		return
	}
	ctl.Limiter.Forget(roomName, left.Identity)
	log.Info().Str("module", "signal").Str("sid", string(sess.SID())).Str("room", string(roomName)).Msg("leave")
	ctl.Orch.PublishRoom(roomName, encode(room.Envelope{Type: room.TypeParticipantLeft, Participant: &left}))
}
