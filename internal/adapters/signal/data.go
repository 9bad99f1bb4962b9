package signal

import (
	"github.com/dkeye/listenparty/internal/core"
	"github.com/dkeye/listenparty/internal/domain"
	"github.com/dkeye/listenparty/internal/room"
	"github.com/rs/zerolog/log"
)

const (
	maxAttributes   = 32
	maxAttributeLen = 256
)

func (ctl *SignalWSController) handleTranscription(sess core.MemberSession, conn *WsSignalConn, env room.Envelope) {
	self := sess.Participant()
	if !self.Capabilities.PublishData {
		ctl.sendError(conn, "", "not_permitted")
		return
	}

	segments := env.Segments[:0]
	for _, s := range env.Segments {
		if s.ID != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) == 0 {
		return
	}

	log.Debug().
		Str("module", "signal").
		Str("identity", string(self.Identity)).
		Str("track", env.Track).
		Int("segments", len(segments)).
		Msg("transcription")
	ctl.Orch.Publish(sess.SID(), encode(room.Envelope{
		Type:        room.TypeTranscription,
		Participant: &self,
		Track:       env.Track,
		Segments:    segments,
	}))
}

func (ctl *SignalWSController) handleSetAttributes(sess core.MemberSession, conn *WsSignalConn, env room.Envelope) {
	if !sess.Participant().Capabilities.UpdateOwnMetadata {
		ctl.sendError(conn, "", "not_permitted")
		return
	}
	if len(env.Attributes) == 0 || len(env.Attributes) > maxAttributes {
		ctl.sendError(conn, "", "bad_payload")
		return
	}
	for k, v := range env.Attributes {
		if k == "" || len(k) > maxAttributeLen || len(v) > maxAttributeLen {
			ctl.sendError(conn, "", "bad_payload")
			return
		}
	}
	roomName, _, ok := ctl.Orch.Registry.RoomOf(sess.SID())
	if !ok {
		return
	}

	p := sess.MergeAttributes(env.Attributes)
	if lang, ok := env.Attributes[domain.AttributeCaptionsLanguage]; ok {
		log.Info().Str("module", "signal").Str("identity", string(p.Identity)).Str("language", lang).Msg("captions language changed")
	}
	ctl.Orch.PublishRoom(roomName, encode(room.Envelope{
		Type:        room.TypeAttributesChanged,
		Participant: &p,
		Attributes:  env.Attributes,
	}))
}
