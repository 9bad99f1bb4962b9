package session

// Action is the closed set of events the reducer understands. The
// unexported marker keeps the set closed to this package.
type Action interface {
	isAction()
}

type (
	// RequestJoin is the lobby form submission.
	RequestJoin struct {
		Name string
		Host bool
	}
	// GrantReceived stores the credential returned by the token endpoint.
	GrantReceived struct {
		Token     string
		ServerURL string
	}
	SetToken struct {
		Token string
	}
	SetServerURL struct {
		URL string
	}
	SetIsHost struct {
		Host bool
	}
	SetShouldConnect struct {
		Connect bool
	}
	// JoinFailed resets to the lobby, keeping caption preferences.
	JoinFailed struct {
		Err error
	}
	ToggleCaptions     struct{}
	SetCaptionsEnabled struct {
		Enabled bool
	}
	SetCaptionsLanguage struct {
		Code string
	}
	Leave struct{}
	// Reset returns to the initial lobby state. An empty CaptionsLanguage
	// means DefaultCaptionsLanguage.
	Reset struct {
		CaptionsLanguage string
	}
)

func (RequestJoin) isAction()         {}
func (GrantReceived) isAction()       {}
func (SetToken) isAction()            {}
func (SetServerURL) isAction()        {}
func (SetIsHost) isAction()           {}
func (SetShouldConnect) isAction()    {}
func (JoinFailed) isAction()          {}
func (ToggleCaptions) isAction()      {}
func (SetCaptionsEnabled) isAction()  {}
func (SetCaptionsLanguage) isAction() {}
func (Leave) isAction()               {}
func (Reset) isAction()               {}
