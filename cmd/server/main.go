package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"
	"github.com/spf13/pflag"

	router "github.com/dkeye/listenparty/internal/adapters/http"
	signaladapter "github.com/dkeye/listenparty/internal/adapters/signal"
	"github.com/dkeye/listenparty/internal/app"
	"github.com/dkeye/listenparty/internal/config"
	"github.com/dkeye/listenparty/internal/grant"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	flags := pflag.NewFlagSet("server", pflag.ExitOnError)
	flags.Int("port", 8080, "listen port")
	flags.String("mode", "release", "gin mode: debug or release")
	flags.String("server_url", "ws://localhost:8080", "room server url handed out with every grant")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if !cfg.SigningConfigured() {
		log.Warn().Msg("PARTY_API_KEY / PARTY_API_SECRET not set; token requests will fail")
	}

	injector := setupDI(ctx, cfg)
	r, err := do.Invoke[*gin.Engine](injector)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build router")
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("party server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

func setupDI(ctx context.Context, cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	grant.RegisterDI(injector)
	app.RegisterDI(injector)
	signaladapter.RegisterDI(injector)
	router.RegisterDI(ctx, injector)

	return injector
}
