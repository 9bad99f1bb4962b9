package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const agentLanguages = `[
 {"code":"en","name":"English","flag":"🇺🇸"},
 {"code":"es","name":"Spanish","flag":"🇪🇸"},
 {"code":"fr","name":"French","flag":"🇫🇷"}
]`

type fakeCaller struct {
	calls   atomic.Int32
	release chan struct{}
	resp    string
	err     error

	mu   sync.Mutex
	dest string
	meth string
	body string
}

func (f *fakeCaller) PerformRPC(ctx context.Context, destination, method, payload string) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.dest, f.meth, f.body = destination, method, payload
	f.mu.Unlock()
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.resp, f.err
}

func TestParse(t *testing.T) {
	c, err := Parse([]byte(agentLanguages))
	if err != nil {
		t.Fatal(err)
	}
	if len(c) != 3 || c[1].Code != "es" || c[1].DisplayGlyph != "🇪🇸" {
		t.Fatalf("unexpected catalog: %+v", c)
	}
	if l, ok := c.Lookup("fr"); !ok || l.Name != "French" {
		t.Fatalf("Lookup(fr) = %+v, %v", l, ok)
	}
}

func TestParse_AcceptsDisplayGlyphAndSkipsBlankCodes(t *testing.T) {
	c, err := Parse([]byte(`[{"code":"de","name":"German","displayGlyph":"🇩🇪"},{"name":"nothing"}]`))
	if err != nil {
		t.Fatal(err)
	}
	if len(c) != 1 || c[0].DisplayGlyph != "🇩🇪" {
		t.Fatalf("unexpected catalog: %+v", c)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte(`{"code":"en"}`)); err == nil {
		t.Fatal("expected error for non-array payload")
	}
}

func TestResolve_SendsEmptyPayloadToAgent(t *testing.T) {
	f := &fakeCaller{resp: agentLanguages}
	r := NewResolver(f, "")
	c, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(c) != 3 {
		t.Fatalf("len = %d", len(c))
	}
	if f.dest != DefaultAgentIdentity || f.meth != MethodGetLanguages || f.body != "" {
		t.Fatalf("unexpected call: %q %q %q", f.dest, f.meth, f.body)
	}
	if !r.Resolved() || len(r.Catalog()) != 3 {
		t.Fatal("catalog not stored")
	}
}

func TestResolve_SingleInFlight(t *testing.T) {
	f := &fakeCaller{resp: agentLanguages, release: make(chan struct{})}
	r := NewResolver(f, "agent")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Resolve(context.Background()); err != nil {
				t.Error(err)
			}
		}()
	}
	// Let the goroutines pile up behind the first call.
	time.Sleep(20 * time.Millisecond)
	close(f.release)
	wg.Wait()

	if n := f.calls.Load(); n != 1 {
		t.Fatalf("calls = %d, want 1", n)
	}
	if _, err := r.Resolve(context.Background()); err != nil || f.calls.Load() != 1 {
		t.Fatal("settled catalog must not refetch")
	}
}

func TestResolve_FailureIsRecordedNotRetried(t *testing.T) {
	f := &fakeCaller{err: errors.New("no such participant")}
	r := NewResolver(f, "agent")

	c, err := r.Resolve(context.Background())
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("err = %v, want *RPCError", err)
	}
	if len(c) != 0 {
		t.Fatalf("catalog = %+v, want empty", c)
	}
	r.Resolve(context.Background())
	if f.calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", f.calls.Load())
	}

	f.err, f.resp = nil, agentLanguages
	c, err = r.Retry(context.Background())
	if err != nil || len(c) != 3 {
		t.Fatalf("Retry = %+v, %v", c, err)
	}
	if f.calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", f.calls.Load())
	}
}

func TestResolve_BadPayloadIsRPCError(t *testing.T) {
	r := NewResolver(&fakeCaller{resp: "not json"}, "agent")
	_, err := r.Resolve(context.Background())
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("err = %v, want *RPCError", err)
	}
}

func TestReset_DropsOutstandingResult(t *testing.T) {
	f := &fakeCaller{resp: agentLanguages, release: make(chan struct{})}
	r := NewResolver(f, "agent")

	done := make(chan struct{})
	go func() {
		r.Resolve(context.Background())
		close(done)
	}()
	for f.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	r.Reset()
	close(f.release)
	<-done

	if r.Resolved() || len(r.Catalog()) != 0 {
		t.Fatal("result of a call started before Reset was kept")
	}
}
