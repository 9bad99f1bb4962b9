package room

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/listenparty/internal/domain"
	"github.com/gorilla/websocket"
)

// fakeRelay accepts one connection, greets it and hands the socket to the
// test.
type fakeRelay struct {
	srv   *httptest.Server
	token chan string
	conns chan *websocket.Conn
}

func newFakeRelay(t *testing.T, greet Envelope) *fakeRelay {
	t.Helper()
	f := &fakeRelay{token: make(chan string, 1), conns: make(chan *websocket.Conn, 1)}
	up := websocket.Upgrader{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != Path {
			http.NotFound(w, r)
			return
		}
		f.token <- r.URL.Query().Get("access_token")
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b, _ := Encode(greet)
		_ = ws.WriteMessage(websocket.TextMessage, b)
		f.conns <- ws
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRelay) write(t *testing.T, ws *websocket.Conn, e Envelope) {
	t.Helper()
	b, err := Encode(e)
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatal(err)
	}
}

func (f *fakeRelay) read(t *testing.T, ws *websocket.Conn) Envelope {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	e, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func listener(id string) domain.Participant {
	return domain.Participant{Identity: domain.Identity(id), Capabilities: domain.CapabilitiesFor(domain.RoleListener)}
}

func joinedAs(self domain.Participant, others ...domain.Participant) Envelope {
	return Envelope{Type: TypeJoined, Identity: self.Identity, Room: "party", Participant: &self, Participants: others}
}

func dialFake(t *testing.T, f *fakeRelay, opts Options) (*Client, *websocket.Conn) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, f.srv.URL, "tok en", opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c, <-f.conns
}

func TestConnectURL(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{"ws://localhost:8080", "ws://localhost:8080/rtc?access_token=t", false},
		{"https://party.example/base/", "wss://party.example/base/rtc?access_token=t", false},
		{"http://h", "ws://h/rtc?access_token=t", false},
		{"ftp://h", "", true},
	}
	for _, tt := range tests {
		got, err := connectURL(tt.in, "t")
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Fatalf("connectURL(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestDial_SendsTokenAndReadsSnapshot(t *testing.T) {
	host := domain.Participant{Identity: "alice", Capabilities: domain.CapabilitiesFor(domain.RoleHost)}
	f := newFakeRelay(t, joinedAs(listener("bob"), host, listener("agent")))
	c, _ := dialFake(t, f, Options{})

	if tok := <-f.token; tok != "tok en" {
		t.Fatalf("token = %q", tok)
	}
	if c.LocalIdentity() != "bob" || c.Room() != "party" {
		t.Fatalf("local = %q room = %q", c.LocalIdentity(), c.Room())
	}
	if h, ok := c.Host(); !ok || h.Identity != "alice" {
		t.Fatalf("Host() = %+v %v", h, ok)
	}
	remote := c.RemoteParticipants()
	if len(remote) != 2 || remote[0].Identity != "agent" {
		t.Fatalf("remote = %+v", remote)
	}
}

func TestDial_RelayError(t *testing.T) {
	f := newFakeRelay(t, Envelope{Type: TypeError, Error: "room full"})
	_, err := Dial(context.Background(), f.srv.URL, "t", Options{})
	if err == nil || !strings.Contains(err.Error(), "room full") {
		t.Fatalf("err = %v", err)
	}
}

func TestClient_StampsFirstReceivedTime(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
	f := newFakeRelay(t, joinedAs(listener("bob")))
	c, ws := dialFake(t, f, Options{Clock: clock})

	events := make(chan TranscriptionEvent, 3)
	c.OnTranscription(func(ev TranscriptionEvent) { events <- ev })
	agent := listener("agent")
	for _, text := range []string{"hel", "hello"} {
		f.write(t, ws, Envelope{Type: TypeTranscription, Participant: &agent, Segments: []Segment{{ID: "1", Language: "en", Text: text}}})
	}
	f.write(t, ws, Envelope{Type: TypeTranscription, Participant: &agent, Segments: []Segment{{ID: "1", Language: "fr", Text: "bonjour"}}})

	first := <-events
	second := <-events
	third := <-events
	if !first.Segments[0].FirstReceivedTime.Equal(second.Segments[0].FirstReceivedTime) {
		t.Fatal("refinement got a new first-received time")
	}
	if second.Segments[0].Text != "hello" || second.Participant.Identity != "agent" {
		t.Fatalf("second = %+v", second)
	}
	if !third.Segments[0].FirstReceivedTime.After(first.Segments[0].FirstReceivedTime) {
		t.Fatal("translation of the same id shares the source's stamp")
	}
}

func TestClient_MissingLanguageSharesFallbackStamp(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
	f := newFakeRelay(t, joinedAs(listener("bob")))
	c, ws := dialFake(t, f, Options{Clock: clock, FallbackLanguage: "en"})

	events := make(chan TranscriptionEvent, 3)
	c.OnTranscription(func(ev TranscriptionEvent) { events <- ev })
	agent := listener("agent")
	f.write(t, ws, Envelope{Type: TypeTranscription, Participant: &agent, Segments: []Segment{{ID: "1", Text: "hel"}}})
	f.write(t, ws, Envelope{Type: TypeTranscription, Participant: &agent, Segments: []Segment{{ID: "2", Language: "en", Text: "second"}}})
	f.write(t, ws, Envelope{Type: TypeTranscription, Participant: &agent, Segments: []Segment{{ID: "1", Language: "en", Text: "hello"}}})

	first, second, refined := <-events, <-events, <-events
	if first.Segments[0].Language != "en" {
		t.Fatalf("language = %q, want fallback en", first.Segments[0].Language)
	}
	if !refined.Segments[0].FirstReceivedTime.Equal(first.Segments[0].FirstReceivedTime) {
		t.Fatal("refinement with explicit fallback language got a new stamp")
	}
	if !refined.Segments[0].FirstReceivedTime.Before(second.Segments[0].FirstReceivedTime) {
		t.Fatal("segment 1 should stay older than segment 2")
	}
}

func TestClient_CancelStopsDelivery(t *testing.T) {
	f := newFakeRelay(t, joinedAs(listener("bob")))
	c, ws := dialFake(t, f, Options{})

	var mu sync.Mutex
	count := 0
	cancel := c.OnTranscription(func(TranscriptionEvent) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	pongs := make(chan struct{}, 2)
	c.OnParticipant(func(ParticipantEvent) { pongs <- struct{}{} })

	f.write(t, ws, Envelope{Type: TypeTranscription, Segments: []Segment{{ID: "1", Text: "a"}}})
	// Events are handled in order; a participant event after the segment
	// acts as a barrier.
	agent := listener("agent")
	f.write(t, ws, Envelope{Type: TypeParticipantJoined, Participant: &agent})
	<-pongs
	cancel()
	f.write(t, ws, Envelope{Type: TypeTranscription, Segments: []Segment{{ID: "2", Text: "b"}}})
	f.write(t, ws, Envelope{Type: TypeParticipantLeft, Participant: &agent})
	<-pongs

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("handler ran %d times, want 1", count)
	}
	if len(c.RemoteParticipants()) != 0 {
		t.Fatal("participant_left not applied")
	}
}

func TestClient_PerformRPC(t *testing.T) {
	f := newFakeRelay(t, joinedAs(listener("bob")))
	c, ws := dialFake(t, f, Options{})

	type result struct {
		payload string
		err     error
	}
	done := make(chan result, 1)
	go func() {
		p, err := c.PerformRPC(context.Background(), "agent", "get/languages", "")
		done <- result{p, err}
	}()

	req := f.read(t, ws)
	if req.Type != TypeRPCRequest || req.Destination != "agent" || req.Method != "get/languages" || req.ID == "" {
		t.Fatalf("request = %+v", req)
	}
	f.write(t, ws, Envelope{Type: TypeRPCResponse, ID: req.ID, Payload: "[]"})
	if r := <-done; r.err != nil || r.payload != "[]" {
		t.Fatalf("result = %+v", r)
	}
}

func TestClient_PerformRPCFailsOnDisconnect(t *testing.T) {
	f := newFakeRelay(t, joinedAs(listener("bob")))
	c, ws := dialFake(t, f, Options{})

	done := make(chan error, 1)
	go func() {
		_, err := c.PerformRPC(context.Background(), "agent", "get/languages", "")
		done <- err
	}()
	f.read(t, ws)
	ws.Close()
	select {
	case err := <-done:
		if err != ErrClosed {
			t.Fatalf("err = %v, want ErrClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("PerformRPC still waiting after disconnect")
	}
}

func TestClient_ServesRegisteredMethods(t *testing.T) {
	f := newFakeRelay(t, joinedAs(listener("agent")))
	c, ws := dialFake(t, f, Options{})
	c.RegisterRPCMethod("get/languages", func(_ context.Context, inv RPCInvocation) (string, error) {
		return "from " + string(inv.Caller), nil
	})

	f.write(t, ws, Envelope{Type: TypeRPCRequest, ID: "r1", Caller: "bob", Method: "get/languages"})
	resp := f.read(t, ws)
	if resp.Type != TypeRPCResponse || resp.ID != "r1" || resp.Destination != "bob" || resp.Payload != "from bob" {
		t.Fatalf("response = %+v", resp)
	}

	f.write(t, ws, Envelope{Type: TypeRPCRequest, ID: "r2", Caller: "bob", Method: "other"})
	if resp := f.read(t, ws); resp.Error != ErrUnsupportedMethod.Error() {
		t.Fatalf("response = %+v", resp)
	}
}

func TestClient_PermissionsFollowGrant(t *testing.T) {
	self := listener("bob")
	self.Capabilities.PublishData = false
	self.Capabilities.UpdateOwnMetadata = false
	f := newFakeRelay(t, joinedAs(self))
	c, _ := dialFake(t, f, Options{})

	if err := c.PublishTranscription("t", []domain.TranscriptSegment{{ID: "1"}}); err != ErrNotPermitted {
		t.Fatalf("PublishTranscription err = %v", err)
	}
	if err := c.SetAttributes(map[string]string{"k": "v"}); err != ErrNotPermitted {
		t.Fatalf("SetAttributes err = %v", err)
	}
}

func TestClient_AttributesChanged(t *testing.T) {
	f := newFakeRelay(t, joinedAs(listener("bob"), listener("agent")))
	c, ws := dialFake(t, f, Options{})
	events := make(chan AttributesEvent, 1)
	c.OnAttributes(func(ev AttributesEvent) { events <- ev })

	self := listener("bob")
	f.write(t, ws, Envelope{Type: TypeAttributesChanged, Participant: &self, Attributes: map[string]string{domain.AttributeCaptionsLanguage: "ja"}})
	ev := <-events
	if ev.Participant.Attributes[domain.AttributeCaptionsLanguage] != "ja" {
		t.Fatalf("event = %+v", ev)
	}
	if c.LocalParticipant().Attributes[domain.AttributeCaptionsLanguage] != "ja" {
		t.Fatal("local attributes not updated")
	}
}
