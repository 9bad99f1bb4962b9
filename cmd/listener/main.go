package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/listenparty/internal/captions"
	"github.com/dkeye/listenparty/internal/config"
	"github.com/dkeye/listenparty/internal/party"
	"github.com/dkeye/listenparty/internal/room"
	"github.com/dkeye/listenparty/internal/session"
	"github.com/dkeye/listenparty/internal/tui"
)

// listener joins a party through the token endpoint and shows captions in
// the terminal. --headless prints caption windows to stdout instead.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	flags := pflag.NewFlagSet("listener", pflag.ExitOnError)
	server := flags.String("server", "http://localhost:8080", "http base url of the token endpoint")
	name := flags.String("name", "", "display name / identity")
	partyID := flags.String("party", "", "party to join")
	host := flags.Bool("host", false, "join as host")
	language := flags.String("language", "", "initial captions language (default from config)")
	headless := flags.Bool("headless", false, "print captions instead of running the terminal UI")
	logFile := flags.String("log-file", "listener.log", "log destination while the terminal UI runs")
	_ = flags.Parse(os.Args[1:])

	if *name == "" || *partyID == "" {
		return errors.New("--name and --party are required")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if !*headless {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: f, NoColor: true})
	}

	cfg, err := config.Load(nil)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	initial := cfg.Captions.DefaultLanguage
	if *language != "" {
		initial = *language
	}

	p := party.New(party.Options{
		Captions: captions.Options{
			WindowSize:       cfg.Captions.WindowSize,
			FallbackLanguage: cfg.Captions.FallbackLanguage,
		},
		CaptionsLanguage: initial,
		AgentIdentity:    cfg.AgentIdentity,
		Tokens:           party.NewHTTPTokenFetcher(*server),
		Dial:             party.RoomDialer(room.Options{FallbackLanguage: cfg.Captions.FallbackLanguage}),
	})

	if err := p.Join(ctx, *name, *partyID, *host); err != nil {
		log.Error().Err(err).Str("party", *partyID).Msg("join failed")
		return err
	}
	defer p.Leave()

	if *headless {
		runHeadless(ctx, p)
		return nil
	}

	prog := tea.NewProgram(tui.New(p, *partyID), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("terminal ui: %w", err)
	}
	return nil
}

func runHeadless(ctx context.Context, p *party.Party) {
	var last string
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.Changes():
		}
		if p.State().Phase == session.PhaseTerminated {
			return
		}
		lines := p.Captions()
		if len(lines) == 0 {
			continue
		}
		newest := lines[len(lines)-1].Segment
		out := fmt.Sprintf("[%s] %s", newest.Language, newest.Text)
		if out != last {
			fmt.Println(out)
			last = out
		}
	}
}
