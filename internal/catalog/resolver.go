// Package catalog fetches the list of caption languages the agent offers.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dkeye/listenparty/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	MethodGetLanguages   = "get/languages"
	DefaultAgentIdentity = "agent"
)

// Catalog is the ordered language list as the agent returned it.
type Catalog []domain.Language

// Lookup returns the entry for code.
func (c Catalog) Lookup(code string) (domain.Language, bool) {
	for _, l := range c {
		if l.Code == code {
			return l, true
		}
	}
	return domain.Language{}, false
}

func (c Catalog) Codes() []string {
	out := make([]string, len(c))
	for i, l := range c {
		out[i] = l.Code
	}
	return out
}

// Caller performs a request/response call against a named participant.
type Caller interface {
	PerformRPC(ctx context.Context, destination, method, payload string) (string, error)
}

// RPCError wraps a failed get/languages call. The catalog stays empty.
type RPCError struct {
	Destination string
	Err         error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("catalog: %s on %q failed: %v", MethodGetLanguages, e.Destination, e.Err)
}

func (e *RPCError) Unwrap() error { return e.Err }

// Parse decodes the agent's JSON array response.
func Parse(payload []byte) (Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("catalog: decode languages: %w", err)
	}
	out := c[:0]
	for _, l := range c {
		if l.Code != "" {
			out = append(out, l)
		}
	}
	return out, nil
}

type state int

const (
	idle state = iota
	inFlight
	done
)

// Resolver issues the languages call at most once per room session.
// Concurrent Resolve calls share the outstanding request.
type Resolver struct {
	caller Caller
	agent  string

	mu      sync.Mutex
	state   state
	wait    chan struct{}
	catalog Catalog
	err     error
	gen     uint64
}

func NewResolver(caller Caller, agentIdentity string) *Resolver {
	if agentIdentity == "" {
		agentIdentity = DefaultAgentIdentity
	}
	return &Resolver{caller: caller, agent: agentIdentity}
}

// Resolve returns the catalog, fetching it if nothing has been fetched yet.
// After the first call settles, later calls return the cached outcome until
// Retry or Reset.
func (r *Resolver) Resolve(ctx context.Context) (Catalog, error) {
	r.mu.Lock()
	switch r.state {
	case done:
		c, err := r.catalog, r.err
		r.mu.Unlock()
		return c, err
	case inFlight:
		wait := r.wait
		r.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		r.mu.Lock()
		c, err := r.catalog, r.err
		r.mu.Unlock()
		return c, err
	}
	r.state = inFlight
	r.wait = make(chan struct{})
	wait := r.wait
	gen := r.gen
	r.mu.Unlock()

	c, err := r.fetch(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen {
		// Reset while the call was outstanding; drop the result.
		close(wait)
		return c, err
	}
	r.catalog, r.err = c, err
	r.state = done
	close(wait)
	return c, err
}

func (r *Resolver) fetch(ctx context.Context) (Catalog, error) {
	resp, err := r.caller.PerformRPC(ctx, r.agent, MethodGetLanguages, "")
	if err == nil {
		var c Catalog
		if c, err = Parse([]byte(resp)); err == nil {
			log.Info().Str("module", "catalog").Int("languages", len(c)).Msg("catalog resolved")
			return c, nil
		}
	}
	rerr := &RPCError{Destination: r.agent, Err: err}
	log.Warn().Str("module", "catalog").Err(rerr).Msg("languages unavailable")
	return Catalog{}, rerr
}

// Catalog returns the last resolved catalog, empty before resolution.
func (r *Resolver) Catalog() Catalog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.catalog
}

func (r *Resolver) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Resolved reports whether a call has settled since the last Reset.
func (r *Resolver) Resolved() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == done
}

// Retry forgets a settled outcome and resolves again. It joins an
// outstanding call instead of starting a second one.
func (r *Resolver) Retry(ctx context.Context) (Catalog, error) {
	r.mu.Lock()
	if r.state == done {
		r.state = idle
		r.catalog, r.err = nil, nil
	}
	r.mu.Unlock()
	return r.Resolve(ctx)
}

// Reset drops everything, including the result of an outstanding call.
func (r *Resolver) Reset() {
	r.mu.Lock()
	r.gen++
	r.state = idle
	r.catalog, r.err = nil, nil
	r.mu.Unlock()
}
