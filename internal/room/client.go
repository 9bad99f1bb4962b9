package room

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/listenparty/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrClosed            = errors.New("room: connection closed")
	ErrNotPermitted      = errors.New("room: not permitted by grant")
	ErrUnsupportedMethod = errors.New("unsupported method")
)

// RemoteError carries an error string sent back by the relay or an RPC peer.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Method == "" {
		return "room: remote error: " + e.Message
	}
	return fmt.Sprintf("room: rpc %s: %s", e.Method, e.Message)
}

type TranscriptionEvent struct {
	Participant domain.Participant
	Track       string
	Segments    []domain.TranscriptSegment
}

type ParticipantEvent struct {
	Participant domain.Participant
	Joined      bool
}

type AttributesEvent struct {
	Participant domain.Participant
	Changed     map[string]string
}

type RPCInvocation struct {
	ID      string
	Caller  domain.Identity
	Method  string
	Payload string
}

type RPCHandler func(ctx context.Context, inv RPCInvocation) (string, error)

type Options struct {
	Dialer       *websocket.Dialer
	JoinTimeout  time.Duration
	WriteTimeout time.Duration
	// RPCTimeout bounds PerformRPC when the caller's context has no deadline.
	RPCTimeout time.Duration
	Clock      func() time.Time
	// FallbackLanguage is given to segments that arrive without one.
	FallbackLanguage string
}

func (o *Options) defaults() {
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = 10 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.RPCTimeout <= 0 {
		o.RPCTimeout = 10 * time.Second
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.FallbackLanguage == "" {
		o.FallbackLanguage = DefaultFallbackLanguage
	}
}

// Client is one participant's connection to a room. Event handlers run on
// the read goroutine, one at a time; they must not block on RPCs, call
// Close, or cancel their own subscription.
type Client struct {
	conn *websocket.Conn
	opts Options
	room domain.RoomName

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	writeMu sync.Mutex

	mu           sync.RWMutex
	local        domain.Participant
	participants map[domain.Identity]domain.Participant
	firstSeen    map[string]time.Time

	pendingMu sync.Mutex
	pending   map[string]chan Envelope

	methodsMu sync.RWMutex
	methods   map[string]RPCHandler

	transcriptions handlerSet[TranscriptionEvent]
	participantEvs handlerSet[ParticipantEvent]
	attributes     handlerSet[AttributesEvent]
}

// Dial connects to serverURL with the grant token and waits for the relay
// to confirm the join.
func Dial(ctx context.Context, serverURL, token string, opts Options) (*Client, error) {
	opts.defaults()
	target, err := connectURL(serverURL, token)
	if err != nil {
		return nil, err
	}

	conn, resp, err := opts.Dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("room: dial %s: %s: %w", serverURL, resp.Status, err)
		}
		return nil, fmt.Errorf("room: dial %s: %w", serverURL, err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(opts.JoinTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("room: await join: %w", err)
	}
	env, err := Decode(data)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	switch {
	case env.Type == TypeError:
		_ = conn.Close()
		return nil, &RemoteError{Message: env.Error}
	case env.Type != TypeJoined || env.Participant == nil:
		_ = conn.Close()
		return nil, fmt.Errorf("room: expected %s, got %s", TypeJoined, env.Type)
	}
	_ = conn.SetReadDeadline(time.Time{})

	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:         conn,
		opts:         opts,
		room:         env.Room,
		ctx:          cctx,
		cancel:       cancel,
		done:         make(chan struct{}),
		local:        *env.Participant,
		participants: make(map[domain.Identity]domain.Participant, len(env.Participants)),
		firstSeen:    make(map[string]time.Time),
		pending:      make(map[string]chan Envelope),
		methods:      make(map[string]RPCHandler),
	}
	for _, p := range env.Participants {
		c.participants[p.Identity] = p
	}
	log.Info().
		Str("module", "room").
		Str("identity", string(c.local.Identity)).
		Str("room", string(c.room)).
		Int("participants", len(env.Participants)).
		Msg("joined room")

	go c.readLoop()
	return c, nil
}

func connectURL(serverURL, token string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("room: server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("room: server url: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + Path
	u.RawQuery = url.Values{"access_token": {token}}.Encode()
	return u.String(), nil
}

func (c *Client) Room() domain.RoomName { return c.room }

func (c *Client) LocalParticipant() domain.Participant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.local
}

func (c *Client) LocalIdentity() domain.Identity { return c.LocalParticipant().Identity }

// RemoteParticipants returns everyone else in the room, ordered by identity.
func (c *Client) RemoteParticipants() []domain.Participant {
	c.mu.RLock()
	out := make([]domain.Participant, 0, len(c.participants))
	for _, p := range c.participants {
		out = append(out, p)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

func (c *Client) Participant(id domain.Identity) (domain.Participant, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if id == c.local.Identity {
		return c.local, true
	}
	p, ok := c.participants[id]
	return p, ok
}

// Host returns the participant allowed to publish audio, if present.
func (c *Client) Host() (domain.Participant, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.local.IsHost() {
		return c.local, true
	}
	for _, p := range c.participants {
		if p.IsHost() {
			return p, true
		}
	}
	return domain.Participant{}, false
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) OnTranscription(fn func(TranscriptionEvent)) (cancel func()) {
	return c.transcriptions.add(fn)
}

func (c *Client) OnParticipant(fn func(ParticipantEvent)) (cancel func()) {
	return c.participantEvs.add(fn)
}

func (c *Client) OnAttributes(fn func(AttributesEvent)) (cancel func()) {
	return c.attributes.add(fn)
}

// RegisterRPCMethod answers method for any caller. Handlers run on their
// own goroutine.
func (c *Client) RegisterRPCMethod(method string, h RPCHandler) {
	c.methodsMu.Lock()
	c.methods[method] = h
	c.methodsMu.Unlock()
}

func (c *Client) UnregisterRPCMethod(method string) {
	c.methodsMu.Lock()
	delete(c.methods, method)
	c.methodsMu.Unlock()
}

// PerformRPC calls method on destination and waits for its answer.
func (c *Client) PerformRPC(ctx context.Context, destination, method, payload string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.RPCTimeout)
		defer cancel()
	}

	id := uuid.NewString()
	ch := make(chan Envelope, 1)
	c.pendingMu.Lock()
	if c.pending == nil {
		c.pendingMu.Unlock()
		return "", ErrClosed
	}
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	err := c.send(Envelope{
		Type:        TypeRPCRequest,
		ID:          id,
		Destination: domain.Identity(destination),
		Method:      method,
		Payload:     payload,
	})
	if err != nil {
		return "", err
	}

	select {
	case env, ok := <-ch:
		if !ok {
			return "", ErrClosed
		}
		if env.Error != "" {
			return "", &RemoteError{Method: method, Message: env.Error}
		}
		return env.Payload, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// SetAttributes merges attrs into the local participant's attributes. An
// empty value removes the key.
func (c *Client) SetAttributes(attrs map[string]string) error {
	if !c.LocalParticipant().Capabilities.UpdateOwnMetadata {
		return ErrNotPermitted
	}
	return c.send(Envelope{Type: TypeSetAttributes, Attributes: attrs})
}

func (c *Client) PublishTranscription(track string, segments []domain.TranscriptSegment) error {
	if !c.LocalParticipant().Capabilities.PublishData {
		return ErrNotPermitted
	}
	wire := make([]Segment, len(segments))
	for i, s := range segments {
		wire[i] = SegmentFrom(s)
	}
	return c.send(Envelope{Type: TypeTranscription, Track: track, Segments: wire})
}

func (c *Client) Ping() error { return c.send(Envelope{Type: TypePing}) }

// Close leaves the room and waits for the read goroutine to exit.
func (c *Client) Close() error {
	c.once.Do(func() {
		c.cancel()
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "leave"),
			time.Now().Add(time.Second),
		)
		_ = c.conn.Close()
		<-c.done
		log.Info().Str("module", "room").Str("room", string(c.room)).Msg("left room")
	})
	return nil
}

func (c *Client) send(e Envelope) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	b, err := Encode(e)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return fmt.Errorf("room: set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("room: write %s: %w", e.Type, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer c.failPending()
	defer c.cancel()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				log.Warn().Err(err).Str("module", "room").Msg("connection lost")
			}
			return
		}
		env, err := Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "room").Msg("bad envelope")
			continue
		}
		c.handle(env)
	}
}

func (c *Client) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for _, ch := range c.pending {
		close(ch)
	}
	c.pending = nil
}

func (c *Client) handle(env Envelope) {
	switch env.Type {
	case TypeParticipantJoined, TypeParticipantLeft:
		if env.Participant == nil {
			return
		}
		p := *env.Participant
		joined := env.Type == TypeParticipantJoined
		c.mu.Lock()
		if joined {
			c.participants[p.Identity] = p
		} else {
			delete(c.participants, p.Identity)
		}
		c.mu.Unlock()
		c.participantEvs.emit(ParticipantEvent{Participant: p, Joined: joined})

	case TypeTranscription:
		ev := TranscriptionEvent{Track: env.Track, Segments: c.stamp(env.Segments)}
		if env.Participant != nil {
			ev.Participant = *env.Participant
		}
		c.transcriptions.emit(ev)

	case TypeAttributesChanged:
		if env.Participant == nil {
			return
		}
		p := c.applyAttributes(env.Participant.Identity, env.Attributes)
		c.attributes.emit(AttributesEvent{Participant: p, Changed: env.Attributes})

	case TypeRPCRequest:
		go c.serveRPC(env)

	case TypeRPCResponse:
		c.deliver(env)

	case TypeError:
		log.Warn().Str("module", "room").Str("error", env.Error).Msg("relay reported error")
		if env.ID != "" {
			c.deliver(env)
		}

	case TypePong:
		log.Debug().Str("module", "room").Msg("pong")

	default:
		log.Debug().Str("module", "room").Str("type", env.Type).Msg("unhandled envelope")
	}
}

// stamp assigns each segment the time its id was first seen in its
// language, keeping that time across refinements. A missing language is
// the fallback language, both for the key and the delivered segment.
func (c *Client) stamp(segments []Segment) []domain.TranscriptSegment {
	now := c.opts.Clock()
	out := make([]domain.TranscriptSegment, 0, len(segments))
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range segments {
		lang := s.Language
		if lang == "" {
			lang = c.opts.FallbackLanguage
		}
		key := lang + "\x00" + s.ID
		first, ok := c.firstSeen[key]
		if !ok {
			first = now
			c.firstSeen[key] = now
		}
		out = append(out, domain.TranscriptSegment{
			ID:                s.ID,
			Language:          lang,
			Text:              s.Text,
			FirstReceivedTime: first,
			Final:             s.Final,
		})
	}
	return out
}

func (c *Client) applyAttributes(id domain.Identity, changed map[string]string) domain.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, remote := c.participants[id]
	if id == c.local.Identity {
		p, remote = c.local, false
	}
	if p.Identity == "" {
		p.Identity = id
	}
	attrs := make(map[string]string, len(p.Attributes)+len(changed))
	for k, v := range p.Attributes {
		attrs[k] = v
	}
	for k, v := range changed {
		if v == "" {
			delete(attrs, k)
			continue
		}
		attrs[k] = v
	}
	p.Attributes = attrs

	if id == c.local.Identity {
		c.local = p
	} else if remote {
		c.participants[id] = p
	}
	return p
}

func (c *Client) deliver(env Envelope) {
	c.pendingMu.Lock()
	ch, ok := c.pending[env.ID]
	if ok {
		delete(c.pending, env.ID)
	}
	c.pendingMu.Unlock()
	if !ok {
		log.Debug().Str("module", "room").Str("id", env.ID).Msg("response for unknown rpc")
		return
	}
	ch <- env
}

func (c *Client) serveRPC(req Envelope) {
	c.methodsMu.RLock()
	h, ok := c.methods[req.Method]
	c.methodsMu.RUnlock()

	resp := Envelope{Type: TypeRPCResponse, ID: req.ID, Destination: req.Caller}
	if !ok {
		resp.Error = ErrUnsupportedMethod.Error()
	} else {
		payload, err := h(c.ctx, RPCInvocation{ID: req.ID, Caller: req.Caller, Method: req.Method, Payload: req.Payload})
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Payload = payload
		}
	}
	if err := c.send(resp); err != nil {
		log.Warn().Err(err).Str("module", "room").Str("method", req.Method).Msg("rpc reply failed")
	}
}

// handlerSet fans an event out to subscribers. Cancel blocks until any
// in-flight emit has returned, so nothing is delivered after it.
type handlerSet[T any] struct {
	mu   sync.RWMutex
	next int
	fns  map[int]func(T)
}

func (h *handlerSet[T]) add(fn func(T)) func() {
	h.mu.Lock()
	if h.fns == nil {
		h.fns = make(map[int]func(T))
	}
	id := h.next
	h.next++
	h.fns[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.fns, id)
			h.mu.Unlock()
		})
	}
}

func (h *handlerSet[T]) emit(v T) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.fns {
		fn(v)
	}
}
