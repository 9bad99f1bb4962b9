package domain

// Participant is the public view of a room member.
type Participant struct {
	Identity     Identity          `json:"identity"`
	Capabilities Capabilities      `json:"permissions"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// IsHost reports whether the participant may publish audio. The room host
// is the participant whose grant allows publishing.
func (p Participant) IsHost() bool { return p.Capabilities.Publish }

// AttributeCaptionsLanguage is set by a participant on every caption
// language change; the agent reads it out-of-band.
const AttributeCaptionsLanguage = "captions_language"
