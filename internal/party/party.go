// Package party is the participant-side handle: it drives the session
// machine through join and leave, keeps the room connection, feeds the
// caption aggregator and resolves the language catalog.
package party

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/listenparty/internal/captions"
	"github.com/dkeye/listenparty/internal/catalog"
	"github.com/dkeye/listenparty/internal/domain"
	"github.com/dkeye/listenparty/internal/room"
	"github.com/dkeye/listenparty/internal/session"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotInLobby = errors.New("party: join is only possible from the lobby")
	ErrLeft       = errors.New("party: left while joining")
)

// JoinError is a failed join. The session is back in the lobby, unless
// the party was left while joining (Err is ErrLeft).
type JoinError struct {
	Stage string
	Err   error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("party: join failed at %s: %v", e.Stage, e.Err)
}
func (e *JoinError) Unwrap() error { return e.Err }

// Conn is the part of a room connection a participant uses.
type Conn interface {
	catalog.Caller
	OnTranscription(fn func(room.TranscriptionEvent)) (cancel func())
	OnParticipant(fn func(room.ParticipantEvent)) (cancel func())
	SetAttributes(attrs map[string]string) error
	Participant(id domain.Identity) (domain.Participant, bool)
	Host() (domain.Participant, bool)
	Done() <-chan struct{}
	Close() error
}

type Dialer func(ctx context.Context, serverURL, token string) (Conn, error)

// RoomDialer dials the relay with the room client.
func RoomDialer(opts room.Options) Dialer {
	return func(ctx context.Context, serverURL, token string) (Conn, error) {
		c, err := room.Dial(ctx, serverURL, token, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

type Options struct {
	Captions captions.Options
	// CaptionsLanguage is the language shown after joining and after a
	// Reset. Empty means the captions fallback language.
	CaptionsLanguage string
	AgentIdentity    string
	Tokens           TokenFetcher
	Dial             Dialer
	// CatalogTimeout bounds the get/languages call.
	CatalogTimeout time.Duration
}

type Party struct {
	opts     Options
	machine  *session.Machine
	captions *captions.Aggregator
	changes  chan struct{}

	mu sync.Mutex
	// generation is bumped by every Leave; a join attaches only if it
	// started in the current generation.
	generation uint64
	conn       Conn
	resolver   *catalog.Resolver
	cancels    []func()
	stop       chan struct{}
}

func New(opts Options) *Party {
	if opts.AgentIdentity == "" {
		opts.AgentIdentity = catalog.DefaultAgentIdentity
	}
	if opts.CatalogTimeout <= 0 {
		opts.CatalogTimeout = 10 * time.Second
	}
	if opts.CaptionsLanguage == "" {
		opts.CaptionsLanguage = opts.Captions.FallbackLanguage
	}
	agg := captions.New(opts.Captions)
	p := &Party{
		opts:     opts,
		machine:  session.NewMachine(opts.CaptionsLanguage),
		captions: agg,
		changes:  make(chan struct{}, 1),
	}
	agg.OnUpdate(func(string) { p.notify() })
	p.machine.Subscribe(func(_, _ session.State) { p.notify() })
	return p
}

func (p *Party) State() session.State { return p.machine.State() }

// Machine exposes the session machine for observers.
func (p *Party) Machine() *session.Machine { return p.machine }

// Changes fires, coalesced, whenever session state, captions or the
// catalog change.
func (p *Party) Changes() <-chan struct{} { return p.changes }

func (p *Party) notify() {
	select {
	case p.changes <- struct{}{}:
	default:
	}
}

// Join runs the lobby flow: fetch a grant, store it, connect. Any failure
// dispatches JoinFailed and returns a *JoinError.
func (p *Party) Join(ctx context.Context, name, partyID string, host bool) error {
	if p.machine.State().Phase != session.PhaseLobby {
		return ErrNotInLobby
	}
	p.mu.Lock()
	gen := p.generation
	p.mu.Unlock()
	p.machine.Dispatch(session.RequestJoin{Name: name, Host: host})

	cred, err := p.opts.Tokens.Fetch(ctx, name, partyID, host)
	if err != nil {
		return p.fail("token", err)
	}
	p.machine.Dispatch(session.GrantReceived{Token: cred.Token, ServerURL: cred.ServerURL})
	p.machine.Dispatch(session.SetIsHost{Host: host})
	s := p.machine.Dispatch(session.SetShouldConnect{Connect: true})
	if s.Phase != session.PhaseConnected {
		return p.fail("connect", fmt.Errorf("session in phase %s", s.Phase))
	}

	conn, err := p.opts.Dial(ctx, s.Credential.ServerURL, s.Credential.Token)
	if err != nil {
		return p.fail("connect", err)
	}
	if !p.attach(gen, conn, s) {
		if err := conn.Close(); err != nil {
			log.Warn().Err(err).Str("module", "party").Msg("close room")
		}
		log.Info().Str("module", "party").Str("party", partyID).Msg("left before the connection was up")
		return &JoinError{Stage: "connect", Err: ErrLeft}
	}
	log.Info().Str("module", "party").Str("name", name).Str("party", partyID).Bool("host", host).Msg("joined")
	return nil
}

func (p *Party) fail(stage string, err error) error {
	jerr := &JoinError{Stage: stage, Err: err}
	log.Error().Err(err).Str("module", "party").Str("stage", stage).Msg("join failed")
	p.machine.Dispatch(session.JoinFailed{Err: jerr})
	return jerr
}

// attach wires conn into the party. It refuses, leaving conn untouched,
// when a Leave happened since the join started in generation gen.
func (p *Party) attach(gen uint64, conn Conn, s session.State) bool {
	resolver := catalog.NewResolver(conn, p.opts.AgentIdentity)
	stop := make(chan struct{})

	p.mu.Lock()
	if p.generation != gen || p.machine.State().Phase != session.PhaseConnected {
		p.mu.Unlock()
		return false
	}
	p.conn = conn
	p.resolver = resolver
	p.stop = stop
	p.cancels = []func(){
		conn.OnTranscription(func(ev room.TranscriptionEvent) {
			p.captions.Upsert(ev.Segments)
		}),
		conn.OnParticipant(func(ev room.ParticipantEvent) {
			if ev.Joined && string(ev.Participant.Identity) == p.opts.AgentIdentity {
				go p.resolveCatalog(resolver)
			}
			p.notify()
		}),
	}
	p.mu.Unlock()

	if _, ok := conn.Participant(domain.Identity(p.opts.AgentIdentity)); ok {
		go p.resolveCatalog(resolver)
	}
	if err := conn.SetAttributes(map[string]string{domain.AttributeCaptionsLanguage: s.CaptionsLanguage}); err != nil {
		log.Warn().Err(err).Str("module", "party").Msg("announce captions language")
	}

	go func() {
		select {
		case <-conn.Done():
			log.Warn().Str("module", "party").Msg("room connection lost")
			p.Leave()
		case <-stop:
		}
	}()
	return true
}

func (p *Party) resolveCatalog(r *catalog.Resolver) {
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.CatalogTimeout)
	defer cancel()
	_, _ = r.Resolve(ctx)
	p.notify()
}

// RetryCatalog asks the agent again after a failed resolution.
func (p *Party) RetryCatalog(ctx context.Context) (catalog.Catalog, error) {
	p.mu.Lock()
	r := p.resolver
	p.mu.Unlock()
	if r == nil {
		return nil, room.ErrClosed
	}
	defer p.notify()
	return r.Retry(ctx)
}

func (p *Party) Languages() catalog.Catalog {
	p.mu.Lock()
	r := p.resolver
	p.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.Catalog()
}

func (p *Party) ToggleCaptions() session.State {
	return p.machine.Dispatch(session.ToggleCaptions{})
}

// SetCaptionsLanguage switches the visible language and tells the room.
func (p *Party) SetCaptionsLanguage(code string) error {
	s := p.machine.Dispatch(session.SetCaptionsLanguage{Code: code})
	if s.Phase != session.PhaseConnected {
		return nil
	}
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return nil
	}
	if err := conn.SetAttributes(map[string]string{domain.AttributeCaptionsLanguage: code}); err != nil {
		return fmt.Errorf("party: set captions language: %w", err)
	}
	return nil
}

// Captions is the visible window for the current language, empty while
// captions are off.
func (p *Party) Captions() []captions.Line {
	s := p.machine.State()
	if !s.CaptionsEnabled || s.Phase != session.PhaseConnected {
		return nil
	}
	return p.captions.Render(s.CaptionsLanguage)
}

// Host returns the participant allowed to publish, if connected.
func (p *Party) Host() (domain.Participant, bool) {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return domain.Participant{}, false
	}
	return conn.Host()
}

// Leave unsubscribes from the room before returning, drops every caption
// buffer and the catalog, closes the connection and terminates the session.
func (p *Party) Leave() {
	p.mu.Lock()
	p.generation++
	conn := p.conn
	cancels := p.cancels
	resolver := p.resolver
	stop := p.stop
	p.conn, p.cancels, p.resolver, p.stop = nil, nil, nil, nil
	p.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if stop != nil {
		close(stop)
	}
	p.captions.Clear()
	if resolver != nil {
		resolver.Reset()
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			log.Warn().Err(err).Str("module", "party").Msg("close room")
		}
	}
	if p.machine.State().Phase != session.PhaseTerminated {
		p.machine.Dispatch(session.Leave{})
	}
}

// Reset leaves if needed and returns to a fresh lobby.
func (p *Party) Reset() {
	p.Leave()
	p.machine.Dispatch(session.Reset{})
}
