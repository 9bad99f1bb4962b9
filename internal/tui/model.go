// Package tui is a terminal caption viewer for a joined party.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/listenparty/internal/captions"
	"github.com/dkeye/listenparty/internal/catalog"
	"github.com/dkeye/listenparty/internal/domain"
	"github.com/dkeye/listenparty/internal/session"

	tea "github.com/charmbracelet/bubbletea"
)

// Party is what the viewer needs from a joined participant.
type Party interface {
	State() session.State
	Captions() []captions.Line
	Languages() catalog.Catalog
	Host() (domain.Participant, bool)
	ToggleCaptions() session.State
	SetCaptionsLanguage(code string) error
	RetryCatalog(ctx context.Context) (catalog.Catalog, error)
	Changes() <-chan struct{}
	Leave()
}

// Model is the root bubbletea model for the caption viewer.
type Model struct {
	party Party
	room  string

	width  int
	height int

	errorMessage string
}

func New(p Party, room string) Model {
	return Model{party: p, room: room}
}

// Init starts listening for party changes.
func (m Model) Init() tea.Cmd {
	return waitForChange(m.party.Changes())
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return ChangedMsg{}
	}
}

func retryCatalogCmd(p Party) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c, err := p.RetryCatalog(ctx)
		return CatalogRetriedMsg{Catalog: c, Err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case ChangedMsg:
		if m.party.State().Phase == session.PhaseTerminated {
			return m, tea.Quit
		}
		return m, waitForChange(m.party.Changes())

	case CatalogRetriedMsg:
		if msg.Err != nil {
			m.errorMessage = "languages unavailable: " + msg.Err.Error()
		} else {
			m.errorMessage = ""
		}
		return m, nil

	case LanguageErrorMsg:
		m.errorMessage = msg.Err.Error()
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyQuit, KeyQuitUpper, KeyCtrlC:
		m.party.Leave()
		return m, tea.Quit

	case KeyToggle:
		m.party.ToggleCaptions()
		return m, nil

	case KeyCycleLanguage:
		next, ok := nextLanguage(m.party.Languages().Codes(), m.party.State().CaptionsLanguage)
		if !ok {
			return m, nil
		}
		if err := m.party.SetCaptionsLanguage(next); err != nil {
			return m, func() tea.Msg { return LanguageErrorMsg{Err: err} }
		}
		return m, nil

	case KeyRetryCatalog:
		if len(m.party.Languages()) > 0 {
			return m, nil
		}
		return m, retryCatalogCmd(m.party)
	}
	return m, nil
}

// nextLanguage returns the code after current in codes, wrapping around.
// An unknown current starts from the first code.
func nextLanguage(codes []string, current string) (string, bool) {
	if len(codes) == 0 {
		return "", false
	}
	for i, c := range codes {
		if c == current {
			return codes[(i+1)%len(codes)], true
		}
	}
	return codes[0], true
}

func (m Model) View() string {
	s := m.party.State()
	var b strings.Builder

	title := "listening party"
	if m.room != "" {
		title += " · " + m.room
	}
	b.WriteString(TitleStyle.Render(title))
	b.WriteString("\n")
	b.WriteString(StatusStyle.Render(m.statusLine(s)))
	b.WriteString("\n\n")

	switch {
	case !s.CaptionsEnabled:
		b.WriteString(StatusStyle.Render("captions off"))
		b.WriteString("\n")
	default:
		lines := m.party.Captions()
		if len(lines) == 0 {
			b.WriteString(StatusStyle.Render("waiting for captions..."))
			b.WriteString("\n")
		}
		for _, l := range lines {
			if l.Dimmed {
				b.WriteString(DimmedCaptionStyle.Render(l.Segment.Text))
			} else {
				b.WriteString(CaptionStyle.Render(l.Segment.Text))
			}
			b.WriteString("\n")
		}
	}

	if m.errorMessage != "" {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render(m.errorMessage))
		b.WriteString("\n")
	}
	if s.LastError != "" {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render(s.LastError))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(renderFooter())
	return b.String()
}

func (m Model) statusLine(s session.State) string {
	parts := []string{s.Phase.String()}
	if host, ok := m.party.Host(); ok {
		parts = append(parts, "host: "+string(host.Identity))
	}
	lang := s.CaptionsLanguage
	if l, ok := m.party.Languages().Lookup(lang); ok {
		lang = fmt.Sprintf("%s %s", l.DisplayGlyph, l.Name)
	}
	parts = append(parts, "captions: "+lang)
	return strings.Join(parts, " | ")
}

func renderFooter() string {
	keys := []struct{ key, desc string }{
		{KeyToggle, "captions"},
		{KeyCycleLanguage, "language"},
		{KeyRetryCatalog, "retry languages"},
		{KeyQuit, "leave"},
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, FooterKeyStyle.Render(k.key)+" "+FooterDescStyle.Render(k.desc))
	}
	return strings.Join(out, "  ")
}
