// Package agent is the captioning participant: it answers get/languages,
// follows which caption languages listeners ask for and publishes
// transcript segments for each of them.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dkeye/listenparty/internal/catalog"
	"github.com/dkeye/listenparty/internal/domain"
	"github.com/dkeye/listenparty/internal/room"
	"github.com/rs/zerolog/log"
)

const DefaultTrack = "captions"

// SupportedLanguages is what the agent offers out of the box.
var SupportedLanguages = catalog.Catalog{
	{Code: "en", Name: "English", DisplayGlyph: "🇺🇸"},
	{Code: "es", Name: "Spanish", DisplayGlyph: "🇪🇸"},
	{Code: "fr", Name: "French", DisplayGlyph: "🇫🇷"},
	{Code: "de", Name: "German", DisplayGlyph: "🇩🇪"},
	{Code: "ja", Name: "Japanese", DisplayGlyph: "🇯🇵"},
}

// Room is the part of a room connection the agent needs.
type Room interface {
	RegisterRPCMethod(method string, h room.RPCHandler)
	UnregisterRPCMethod(method string)
	OnAttributes(fn func(room.AttributesEvent)) (cancel func())
	OnParticipant(fn func(room.ParticipantEvent)) (cancel func())
	RemoteParticipants() []domain.Participant
	PublishTranscription(track string, segments []domain.TranscriptSegment) error
}

// Translator turns source text into another language.
type Translator interface {
	Translate(ctx context.Context, text, from, to string) (string, error)
}

// PassthroughTranslator returns the source text unchanged.
type PassthroughTranslator struct{}

func (PassthroughTranslator) Translate(_ context.Context, text, _, _ string) (string, error) {
	return text, nil
}

type Options struct {
	Languages      catalog.Catalog
	SourceLanguage string
	Track          string
	// Partials publishes growing word-by-word refinements before the
	// final segment.
	Partials   bool
	Translator Translator
}

type Agent struct {
	room Room
	opts Options

	mu        sync.Mutex
	requested map[domain.Identity]string

	seq     atomic.Uint64
	cancels []func()
}

func New(r Room, opts Options) *Agent {
	if len(opts.Languages) == 0 {
		opts.Languages = SupportedLanguages
	}
	if opts.SourceLanguage == "" {
		opts.SourceLanguage = "en"
	}
	if opts.Track == "" {
		opts.Track = DefaultTrack
	}
	if opts.Translator == nil {
		opts.Translator = PassthroughTranslator{}
	}
	return &Agent{room: r, opts: opts, requested: make(map[domain.Identity]string)}
}

// Start registers the RPC method and begins following attribute changes.
// Participants already in the room are picked up from their attributes.
func (a *Agent) Start() {
	a.room.RegisterRPCMethod(catalog.MethodGetLanguages, a.handleGetLanguages)
	a.cancels = append(a.cancels,
		a.room.OnAttributes(func(ev room.AttributesEvent) {
			if code, ok := ev.Changed[domain.AttributeCaptionsLanguage]; ok {
				a.request(ev.Participant.Identity, code)
			}
		}),
		a.room.OnParticipant(func(ev room.ParticipantEvent) {
			if ev.Joined {
				if code := ev.Participant.Attributes[domain.AttributeCaptionsLanguage]; code != "" {
					a.request(ev.Participant.Identity, code)
				}
				return
			}
			a.mu.Lock()
			delete(a.requested, ev.Participant.Identity)
			a.mu.Unlock()
		}),
	)
	for _, p := range a.room.RemoteParticipants() {
		if code := p.Attributes[domain.AttributeCaptionsLanguage]; code != "" {
			a.request(p.Identity, code)
		}
	}
	log.Info().Str("module", "agent").Strs("languages", a.opts.Languages.Codes()).Msg("agent started")
}

func (a *Agent) Stop() {
	a.room.UnregisterRPCMethod(catalog.MethodGetLanguages)
	for _, cancel := range a.cancels {
		cancel()
	}
	a.cancels = nil
}

func (a *Agent) handleGetLanguages(_ context.Context, inv room.RPCInvocation) (string, error) {
	b, err := json.Marshal(a.opts.Languages)
	if err != nil {
		return "", fmt.Errorf("encode languages: %w", err)
	}
	log.Debug().Str("module", "agent").Str("caller", string(inv.Caller)).Msg("languages requested")
	return string(b), nil
}

func (a *Agent) request(who domain.Identity, code string) {
	if _, ok := a.opts.Languages.Lookup(code); !ok {
		log.Warn().Str("module", "agent").Str("participant", string(who)).Str("language", code).Msg("unsupported language requested")
		return
	}
	a.mu.Lock()
	a.requested[who] = code
	a.mu.Unlock()
	log.Info().Str("module", "agent").Str("participant", string(who)).Str("language", code).Msg("captions language requested")
}

// Languages returns the source language plus every language a present
// participant asked for, sorted.
func (a *Agent) Languages() []string {
	set := map[string]struct{}{a.opts.SourceLanguage: {}}
	a.mu.Lock()
	for _, code := range a.requested {
		set[code] = struct{}{}
	}
	a.mu.Unlock()
	out := make([]string, 0, len(set))
	for code := range set {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Caption publishes text as one segment in every active language. With
// Partials on, the segment grows word by word under a single id.
func (a *Agent) Caption(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	id := fmt.Sprintf("seg-%d", a.seq.Add(1))

	var steps []string
	if a.opts.Partials {
		words := strings.Fields(text)
		for i := 1; i < len(words); i++ {
			steps = append(steps, strings.Join(words[:i], " "))
		}
	}
	steps = append(steps, text)

	langs := a.Languages()
	for i, step := range steps {
		final := i == len(steps)-1
		segs := make([]domain.TranscriptSegment, 0, len(langs))
		for _, lang := range langs {
			out := step
			if lang != a.opts.SourceLanguage {
				var err error
				if out, err = a.opts.Translator.Translate(ctx, step, a.opts.SourceLanguage, lang); err != nil {
					log.Warn().Err(err).Str("module", "agent").Str("language", lang).Msg("translate")
					continue
				}
			}
			segs = append(segs, domain.TranscriptSegment{ID: id, Language: lang, Text: out, Final: final})
		}
		if err := a.room.PublishTranscription(a.opts.Track, segs); err != nil {
			return fmt.Errorf("publish %s: %w", id, err)
		}
	}
	return nil
}
