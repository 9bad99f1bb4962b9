package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/dkeye/listenparty/internal/adapters/signal"
	"github.com/dkeye/listenparty/internal/app"
	"github.com/dkeye/listenparty/internal/config"
	"github.com/dkeye/listenparty/internal/domain"
	"github.com/dkeye/listenparty/internal/room"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// TokenIssuer mints grants for the token endpoint and admits room
// connections.
type TokenIssuer interface {
	Configured() bool
	Mint(identity, room string, role domain.Role) (string, error)
	VerifyJoin(token string) (*domain.Grant, error)
}

func SetupRouter(
	ctx context.Context,
	cfg *config.Config,
	issuer TokenIssuer,
	orch *app.Orchestrator,
	ctrl *signal.SignalWSController,
) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	log.Info().Str("module", "adapters.http").Str("server_url", cfg.ServerURL).Msg("router setup")

	token := tokenHandler(issuer, cfg.ServerURL)
	r.GET("/token", token)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET(room.Path, func(c *gin.Context) {
		g, err := issuer.VerifyJoin(bearer(c))
		if err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Msg("room connection rejected")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		ctrl.HandleSignal(ctx, c, g)
	})

	api := r.Group("/api")
	api.GET("/token", token)

	// GET /api/rooms: live rooms
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, orch.Rooms.List())
	})

	// GET /api/rooms/:name: participants of one room
	api.GET("/rooms/:name", func(c *gin.Context) {
		rs, ok := orch.Rooms.Get(domain.RoomName(c.Param("name")))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"name":         rs.Name(),
			"participants": rs.Participants(),
		})
	})

	// DELETE /api/rooms/:name: the host ends the party
	api.DELETE("/rooms/:name", func(c *gin.Context) {
		name := domain.RoomName(c.Param("name"))
		g, err := issuer.VerifyJoin(bearer(c))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if g.Room != name || !g.Capabilities.Publish {
			c.JSON(http.StatusForbidden, gin.H{"error": "only the host can end the party"})
			return
		}
		orch.EvictRoom(name)
		log.Info().Str("module", "adapters.http").Str("room", string(name)).Str("by", string(g.Identity)).Msg("room evicted")
		c.Status(http.StatusNoContent)
	})

	return r
}

// bearer takes the grant from the access_token query or an Authorization
// header.
func bearer(c *gin.Context) string {
	if t := c.Query("access_token"); t != "" {
		return t
	}
	h := c.GetHeader("Authorization")
	if t, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(t)
	}
	return ""
}
