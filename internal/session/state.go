// Package session is the single source of truth for a participant's
// connection phase, credential, role and caption preferences. State only
// changes by reducing one Action at a time.
package session

import (
	"fmt"

	"github.com/dkeye/listenparty/internal/domain"
)

type Phase int

const (
	PhaseLobby Phase = iota
	PhaseAwaitingGrant
	PhaseConnected
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhaseLobby:
		return "lobby"
	case PhaseAwaitingGrant:
		return "awaiting_grant"
	case PhaseConnected:
		return "connected"
	case PhaseTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Credential is what the token endpoint hands back on join.
type Credential struct {
	Token     string
	ServerURL string
}

type State struct {
	Credential    Credential
	ShouldConnect bool
	Phase         Phase
	Role          domain.Role
	Name          string

	CaptionsEnabled  bool
	CaptionsLanguage string

	// LastError is the text of the most recent join failure.
	LastError string
}

// HasCredential reports whether a token has been stored.
func (s State) HasCredential() bool { return s.Credential.Token != "" }

// InitialState is the lobby a fresh session starts in.
func InitialState(captionsLanguage string) State {
	return State{
		Phase:            PhaseLobby,
		Role:             domain.RoleListener,
		CaptionsEnabled:  true,
		CaptionsLanguage: captionsLanguage,
	}
}
