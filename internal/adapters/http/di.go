package http

import (
	"context"

	"github.com/dkeye/listenparty/internal/adapters/signal"
	"github.com/dkeye/listenparty/internal/app"
	"github.com/dkeye/listenparty/internal/config"
	"github.com/dkeye/listenparty/internal/grant"
	"github.com/gin-gonic/gin"
	"github.com/samber/do/v2"
)

// RegisterDI provides the gin engine. ctx bounds every room connection.
func RegisterDI(ctx context.Context, injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*gin.Engine, error) {
		return SetupRouter(
			ctx,
			do.MustInvoke[*config.Config](i),
			do.MustInvoke[*grant.Issuer](i),
			do.MustInvoke[*app.Orchestrator](i),
			do.MustInvoke[*signal.SignalWSController](i),
		), nil
	})
}
