package main

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/listenparty/internal/agent"
	"github.com/dkeye/listenparty/internal/config"
	"github.com/dkeye/listenparty/internal/domain"
	"github.com/dkeye/listenparty/internal/grant"
	"github.com/dkeye/listenparty/internal/room"
)

// The agent joins a party, answers get/languages and captions every line
// read from stdin in the languages listeners ask for.
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	flags := pflag.NewFlagSet("agent", pflag.ExitOnError)
	partyID := flags.String("party", "", "party (room) to caption")
	token := flags.String("token", "", "use this grant instead of minting one")
	partials := flags.Bool("partials", true, "publish word-by-word refinements before each final segment")
	source := flags.String("source-language", "en", "language of stdin text")
	flags.String("server_url", "ws://localhost:8080", "room server url")
	flags.String("agent_identity", "agent", "identity to join as")
	_ = flags.Parse(os.Args[1:])

	if *partyID == "" {
		log.Fatal().Msg("--party is required")
	}

	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if *token == "" {
		issuer := grant.NewIssuer(grant.Keys{APIKey: cfg.APIKey, APISecret: cfg.APISecret}, grant.WithTTL(cfg.GrantTTL))
		// The agent never publishes media, so it is not mistaken for the host.
		*token, err = issuer.Mint(cfg.AgentIdentity, *partyID, domain.RoleListener)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to mint agent grant")
		}
	}

	client, err := room.Dial(ctx, cfg.ServerURL, *token, room.Options{FallbackLanguage: cfg.Captions.FallbackLanguage})
	if err != nil {
		log.Fatal().Err(err).Str("server_url", cfg.ServerURL).Msg("failed to join party")
	}
	defer client.Close()

	a := agent.New(client, agent.Options{SourceLanguage: *source, Partials: *partials})
	a.Start()
	defer a.Stop()
	log.Info().Str("party", *partyID).Str("identity", string(client.LocalIdentity())).Msg("agent joined, reading captions from stdin")

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		if err := sc.Err(); err != nil {
			log.Error().Err(err).Msg("read stdin")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("agent shutting down")
			return
		case <-client.Done():
			log.Warn().Msg("room connection lost")
			return
		case line, ok := <-lines:
			if !ok {
				log.Info().Msg("stdin closed")
				return
			}
			if err := a.Caption(ctx, line); err != nil {
				log.Error().Err(err).Msg("caption")
			}
		}
	}
}
