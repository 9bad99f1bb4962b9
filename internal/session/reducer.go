package session

import (
	"fmt"

	"github.com/dkeye/listenparty/internal/domain"
)

const DefaultCaptionsLanguage = "en"

// StateViolation is raised when the reducer receives an action outside
// its closed set. It is a programming error, never a runtime condition.
type StateViolation struct {
	Action Action
}

func (e *StateViolation) Error() string {
	return fmt.Sprintf("session: unknown action %T", e.Action)
}

// Reduce returns the state that follows s after a. It has no side effects.
func Reduce(s State, a Action) State {
	if s.Phase == PhaseTerminated {
		if r, ok := a.(Reset); ok {
			return reset(r)
		}
		if !known(a) {
			panic(&StateViolation{Action: a})
		}
		return s
	}

	switch a := a.(type) {
	case RequestJoin:
		if s.Phase != PhaseLobby {
			return s
		}
		s.Phase = PhaseAwaitingGrant
		s.Name = a.Name
		s.Role = domain.RoleFromHostFlag(a.Host)
		s.LastError = ""
		return s
	case GrantReceived:
		s.Credential = Credential{Token: a.Token, ServerURL: a.ServerURL}
		return advance(s)
	case SetToken:
		s.Credential.Token = a.Token
		return advance(s)
	case SetServerURL:
		s.Credential.ServerURL = a.URL
		return s
	case SetIsHost:
		s.Role = domain.RoleFromHostFlag(a.Host)
		return s
	case SetShouldConnect:
		s.ShouldConnect = a.Connect
		return advance(s)
	case JoinFailed:
		next := InitialState(s.CaptionsLanguage)
		next.CaptionsEnabled = s.CaptionsEnabled
		if a.Err != nil {
			next.LastError = a.Err.Error()
		}
		return next
	case ToggleCaptions:
		s.CaptionsEnabled = !s.CaptionsEnabled
		return s
	case SetCaptionsEnabled:
		s.CaptionsEnabled = a.Enabled
		return s
	case SetCaptionsLanguage:
		s.CaptionsLanguage = a.Code
		return s
	case Leave:
		s.Phase = PhaseTerminated
		s.Credential = Credential{}
		s.ShouldConnect = false
		return s
	case Reset:
		return reset(a)
	default:
		panic(&StateViolation{Action: a})
	}
}

// advance moves to Connected once a token is stored and the connect flag
// is set; the two arrive independently.
func advance(s State) State {
	if s.Phase >= PhaseConnected {
		return s
	}
	if s.HasCredential() && s.ShouldConnect {
		s.Phase = PhaseConnected
	}
	return s
}

func reset(r Reset) State {
	if r.CaptionsLanguage == "" {
		return InitialState(DefaultCaptionsLanguage)
	}
	return InitialState(r.CaptionsLanguage)
}

func known(a Action) bool {
	switch a.(type) {
	case RequestJoin, GrantReceived, SetToken, SetServerURL, SetIsHost, SetShouldConnect,
		JoinFailed, ToggleCaptions, SetCaptionsEnabled, SetCaptionsLanguage, Leave, Reset:
		return true
	default:
		return false
	}
}
