// Package captions turns the unordered, duplicate-prone stream of partial
// and final transcript segments into a short language-scoped window.
package captions

import (
	"sort"
	"sync"

	"github.com/dkeye/listenparty/internal/domain"
)

const (
	DefaultWindowSize       = 2
	DefaultFallbackLanguage = "en"
)

type Options struct {
	// WindowSize is the number of lines Render returns at most.
	WindowSize int
	// FallbackLanguage is used for segments that arrive without a language.
	FallbackLanguage string
}

// Line is one visible caption. Dimmed marks every line but the newest.
type Line struct {
	Segment domain.TranscriptSegment
	Dimmed  bool
}

// Aggregator keeps, per language, the latest version of every segment id.
// Buffers only grow; Clear drops them all at teardown.
type Aggregator struct {
	mu       sync.RWMutex
	opts     Options
	buffers  map[string]map[string]domain.TranscriptSegment
	onUpdate func(lang string)
}

func New(opts Options) *Aggregator {
	if opts.WindowSize <= 0 {
		opts.WindowSize = DefaultWindowSize
	}
	if opts.FallbackLanguage == "" {
		opts.FallbackLanguage = DefaultFallbackLanguage
	}
	return &Aggregator{
		opts:    opts,
		buffers: make(map[string]map[string]domain.TranscriptSegment),
	}
}

// OnUpdate installs fn to be called with each language touched by Upsert.
// It runs outside the aggregator lock.
func (a *Aggregator) OnUpdate(fn func(lang string)) {
	a.mu.Lock()
	a.onUpdate = fn
	a.mu.Unlock()
}

// Upsert stores every segment under its language and id, overwriting any
// earlier version of the same id whatever the arrival order.
func (a *Aggregator) Upsert(segments []domain.TranscriptSegment) {
	if len(segments) == 0 {
		return
	}
	touched := make(map[string]struct{}, 1)

	a.mu.Lock()
	for _, seg := range segments {
		if seg.Language == "" {
			seg.Language = a.opts.FallbackLanguage
		}
		buf, ok := a.buffers[seg.Language]
		if !ok {
			buf = make(map[string]domain.TranscriptSegment)
			a.buffers[seg.Language] = buf
		}
		buf[seg.ID] = seg
		touched[seg.Language] = struct{}{}
	}
	fn := a.onUpdate
	a.mu.Unlock()

	if fn == nil {
		return
	}
	for lang := range touched {
		fn(lang)
	}
}

// Render returns at most WindowSize lines for lang in ascending
// firstReceivedTime order. Ties fall back to id so output is stable.
func (a *Aggregator) Render(lang string) []Line {
	a.mu.RLock()
	buf := a.buffers[lang]
	segs := make([]domain.TranscriptSegment, 0, len(buf))
	for _, s := range buf {
		segs = append(segs, s)
	}
	k := a.opts.WindowSize
	a.mu.RUnlock()

	sort.Slice(segs, func(i, j int) bool {
		ti, tj := segs[i].FirstReceivedTime, segs[j].FirstReceivedTime
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return segs[i].ID < segs[j].ID
	})
	if len(segs) > k {
		segs = segs[len(segs)-k:]
	}

	lines := make([]Line, len(segs))
	for i, s := range segs {
		lines[i] = Line{Segment: s, Dimmed: i < len(segs)-1}
	}
	return lines
}

// Buffer returns a copy of the id → segment map for lang.
func (a *Aggregator) Buffer(lang string) map[string]domain.TranscriptSegment {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]domain.TranscriptSegment, len(a.buffers[lang]))
	for id, s := range a.buffers[lang] {
		out[id] = s
	}
	return out
}

// Languages lists every language with at least one segment, sorted.
func (a *Aggregator) Languages() []string {
	a.mu.RLock()
	out := make([]string, 0, len(a.buffers))
	for lang := range a.buffers {
		out = append(out, lang)
	}
	a.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (a *Aggregator) Len(lang string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.buffers[lang])
}

func (a *Aggregator) WindowSize() int { return a.opts.WindowSize }

func (a *Aggregator) Clear() {
	a.mu.Lock()
	a.buffers = make(map[string]map[string]domain.TranscriptSegment)
	a.mu.Unlock()
}
