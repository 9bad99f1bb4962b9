// Package room holds the JSON wire protocol spoken over the room websocket
// and a client for it.
package room

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/listenparty/internal/domain"
)

// Envelope types, server → client.
const (
	TypeJoined            = "joined"
	TypeParticipantJoined = "participant_joined"
	TypeParticipantLeft   = "participant_left"
	TypeAttributesChanged = "attributes_changed"
	TypePong              = "pong"
	TypeError             = "error"
)

// Envelope types, client → server. Transcription and the RPC pair travel
// both ways.
const (
	TypeTranscription = "transcription"
	TypeRPCRequest    = "rpc_request"
	TypeRPCResponse   = "rpc_response"
	TypeSetAttributes = "set_attributes"
	TypePing          = "ping"
)

// Path is where the relay accepts room connections.
const Path = "/rtc"

// DefaultFallbackLanguage is the language of a segment sent without one.
const DefaultFallbackLanguage = "en"

// Segment is a transcript segment as it travels. The receiving client
// stamps the first-received time; it is never sent.
type Segment struct {
	ID       string `json:"id"`
	Language string `json:"language,omitempty"`
	Text     string `json:"text"`
	Final    bool   `json:"final"`
}

func SegmentFrom(s domain.TranscriptSegment) Segment {
	return Segment{ID: s.ID, Language: s.Language, Text: s.Text, Final: s.Final}
}

// Envelope is the single frame shape. Which fields are set depends on Type.
type Envelope struct {
	Type string `json:"type"`

	// joined
	Identity     domain.Identity      `json:"identity,omitempty"`
	Room         domain.RoomName      `json:"room,omitempty"`
	Participants []domain.Participant `json:"participants,omitempty"`

	// participant_*, transcription, attributes_changed
	Participant *domain.Participant `json:"participant,omitempty"`

	// transcription
	Track    string    `json:"track,omitempty"`
	Segments []Segment `json:"segments,omitempty"`

	// rpc_request, rpc_response
	ID          string          `json:"id,omitempty"`
	Caller      domain.Identity `json:"caller,omitempty"`
	Destination domain.Identity `json:"destination,omitempty"`
	Method      string          `json:"method,omitempty"`
	Payload     string          `json:"payload,omitempty"`

	// set_attributes, attributes_changed
	Attributes map[string]string `json:"attributes,omitempty"`

	Error string `json:"error,omitempty"`
}

func Encode(e Envelope) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("room: encode %s: %w", e.Type, err)
	}
	return b, nil
}

func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("room: decode envelope: %w", err)
	}
	if e.Type == "" {
		return Envelope{}, fmt.Errorf("room: envelope without type")
	}
	return e, nil
}
