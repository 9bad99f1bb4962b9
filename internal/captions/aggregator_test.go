package captions

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/listenparty/internal/domain"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func seg(id, lang, text string, offset time.Duration) domain.TranscriptSegment {
	return domain.TranscriptSegment{ID: id, Language: lang, Text: text, FirstReceivedTime: t0.Add(offset)}
}

func texts(lines []Line) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Segment.Text
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNew_Defaults(t *testing.T) {
	a := New(Options{})
	if a.WindowSize() != DefaultWindowSize {
		t.Fatalf("WindowSize = %d", a.WindowSize())
	}
	a.Upsert([]domain.TranscriptSegment{{ID: "1", Text: "hi", FirstReceivedTime: t0}})
	if a.Len(DefaultFallbackLanguage) != 1 {
		t.Fatal("segment without language not stored under fallback")
	}
}

func TestUpsert_LastWriteWins(t *testing.T) {
	a := New(Options{})
	a.Upsert([]domain.TranscriptSegment{seg("s1", "en", "hel", 0)})
	a.Upsert([]domain.TranscriptSegment{seg("s1", "en", "hello", 0)})
	a.Upsert([]domain.TranscriptSegment{seg("s1", "en", "hello", 0)})

	if a.Len("en") != 1 {
		t.Fatalf("Len = %d, want 1", a.Len("en"))
	}
	if got := a.Buffer("en")["s1"].Text; got != "hello" {
		t.Fatalf("Text = %q, want hello", got)
	}
}

func TestUpsert_NeverRemovesOtherEntries(t *testing.T) {
	a := New(Options{})
	a.Upsert([]domain.TranscriptSegment{seg("a", "en", "one", 0), seg("b", "en", "two", time.Second)})
	a.Upsert([]domain.TranscriptSegment{seg("c", "fr", "trois", 0)})
	a.Upsert([]domain.TranscriptSegment{seg("a", "en", "one!", 0)})
	if a.Len("en") != 2 || a.Len("fr") != 1 {
		t.Fatalf("unexpected sizes en=%d fr=%d", a.Len("en"), a.Len("fr"))
	}
	if langs := a.Languages(); !equal(langs, []string{"en", "fr"}) {
		t.Fatalf("Languages = %v", langs)
	}
}

func TestRender_WindowAndOrder(t *testing.T) {
	a := New(Options{WindowSize: 2})
	a.Upsert([]domain.TranscriptSegment{
		seg("c", "en", "third", 3*time.Second),
		seg("a", "en", "first", 1*time.Second),
		seg("b", "en", "second", 2*time.Second),
	})
	lines := a.Render("en")
	if got := texts(lines); !equal(got, []string{"second", "third"}) {
		t.Fatalf("Render = %v", got)
	}
	if !lines[0].Dimmed || lines[1].Dimmed {
		t.Fatalf("dimming wrong: %+v", lines)
	}
}

func TestRender_SingleLineNotDimmed(t *testing.T) {
	a := New(Options{})
	a.Upsert([]domain.TranscriptSegment{seg("a", "en", "only", 0)})
	lines := a.Render("en")
	if len(lines) != 1 || lines[0].Dimmed {
		t.Fatalf("unexpected lines: %+v", lines)
	}
}

func TestRender_UnknownLanguageIsEmpty(t *testing.T) {
	a := New(Options{})
	a.Upsert([]domain.TranscriptSegment{seg("a", "en", "hi", 0)})
	if lines := a.Render("de"); len(lines) != 0 {
		t.Fatalf("Render(de) = %+v", lines)
	}
}

func TestRender_TiesBrokenByID(t *testing.T) {
	a := New(Options{WindowSize: 3})
	a.Upsert([]domain.TranscriptSegment{seg("b", "en", "B", 0), seg("a", "en", "A", 0), seg("c", "en", "C", 0)})
	if got := texts(a.Render("en")); !equal(got, []string{"A", "B", "C"}) {
		t.Fatalf("Render = %v", got)
	}
}

func TestRender_PropertiesUnderShuffledDelivery(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var all []domain.TranscriptSegment
	for i := 0; i < 40; i++ {
		id := string(rune('a' + i%20))
		all = append(all, seg(id, "en", id, time.Duration(i%20)*time.Second))
	}
	for k := 1; k <= 4; k++ {
		rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
		a := New(Options{WindowSize: k})
		for _, s := range all {
			a.Upsert([]domain.TranscriptSegment{s})
			lines := a.Render("en")
			if len(lines) > k {
				t.Fatalf("k=%d: window %d too large", k, len(lines))
			}
			for i := 1; i < len(lines); i++ {
				if lines[i].Segment.FirstReceivedTime.Before(lines[i-1].Segment.FirstReceivedTime) {
					t.Fatalf("k=%d: out of order: %v", k, texts(lines))
				}
			}
		}
	}
}

func TestRender_LanguageSwitchIsLossless(t *testing.T) {
	a := New(Options{})
	a.Upsert([]domain.TranscriptSegment{
		seg("e1", "en", "hello", 0), seg("e2", "en", "world", time.Second),
		seg("f1", "fr", "bonjour", 0), seg("f2", "fr", "monde", time.Second),
	})
	before := texts(a.Render("en"))
	if got := texts(a.Render("fr")); !equal(got, []string{"bonjour", "monde"}) {
		t.Fatalf("Render(fr) = %v", got)
	}
	if after := texts(a.Render("en")); !equal(before, after) {
		t.Fatalf("switch back changed window: %v vs %v", before, after)
	}
}

func TestOnUpdate_CalledPerLanguage(t *testing.T) {
	a := New(Options{})
	var mu sync.Mutex
	got := map[string]int{}
	a.OnUpdate(func(lang string) {
		mu.Lock()
		got[lang]++
		mu.Unlock()
	})
	a.Upsert([]domain.TranscriptSegment{seg("1", "en", "x", 0), seg("2", "en", "y", 0), seg("3", "es", "z", 0)})
	if got["en"] != 1 || got["es"] != 1 {
		t.Fatalf("OnUpdate calls = %v", got)
	}
}

func TestClear(t *testing.T) {
	a := New(Options{})
	a.Upsert([]domain.TranscriptSegment{seg("1", "en", "x", 0)})
	a.Clear()
	if a.Len("en") != 0 || len(a.Languages()) != 0 {
		t.Fatal("Clear left segments behind")
	}
}
