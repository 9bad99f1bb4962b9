package session

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Observer is told about every committed transition. Observers run after
// the machine lock is released, so they may Dispatch themselves.
type Observer func(prev, next State)

// Machine owns the one live State of a client session. Nothing else
// mutates it; consumers hold the *Machine and dispatch actions.
type Machine struct {
	mu              sync.Mutex
	state           State
	defaultLanguage string

	obsMu     sync.RWMutex
	observers map[int]Observer
	nextObs   int
}

func NewMachine(captionsLanguage string) *Machine {
	if captionsLanguage == "" {
		captionsLanguage = DefaultCaptionsLanguage
	}
	return &Machine{
		state:           InitialState(captionsLanguage),
		defaultLanguage: captionsLanguage,
		observers:       make(map[int]Observer),
	}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Dispatch reduces a into the current state atomically and returns the
// new state. An unknown action panics with *StateViolation.
func (m *Machine) Dispatch(a Action) State {
	if r, ok := a.(Reset); ok && r.CaptionsLanguage == "" {
		a = Reset{CaptionsLanguage: m.defaultLanguage}
	}

	prev, next := m.reduce(a)

	if prev.Phase != next.Phase {
		log.Info().
			Str("module", "session").
			Str("from", prev.Phase.String()).
			Str("to", next.Phase.String()).
			Str("role", next.Role.String()).
			Msg("phase changed")
	}
	m.notify(prev, next)
	return next
}

func (m *Machine) reduce(a Action) (prev, next State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev = m.state
	next = Reduce(prev, a)
	m.state = next
	return prev, next
}

// Subscribe registers fn and returns a function that removes it.
func (m *Machine) Subscribe(fn Observer) (cancel func()) {
	m.obsMu.Lock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	m.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.obsMu.Lock()
			delete(m.observers, id)
			m.obsMu.Unlock()
		})
	}
}

func (m *Machine) notify(prev, next State) {
	m.obsMu.RLock()
	fns := make([]Observer, 0, len(m.observers))
	for _, fn := range m.observers {
		fns = append(fns, fn)
	}
	m.obsMu.RUnlock()

	for _, fn := range fns {
		fn(prev, next)
	}
}
