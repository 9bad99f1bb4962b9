package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/listenparty/internal/domain"
	"github.com/dkeye/listenparty/internal/grant"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type TokenRequest struct {
	PartyID string `form:"party_id"`
	Name    string `form:"name"`
	// Host is "true" for the host; any other value joins as a listener.
	Host string `form:"host"`
}

func (r TokenRequest) IsHost() bool { return r.Host == "true" }

type TokenResponse struct {
	Identity  string `json:"identity"`
	Token     string `json:"token"`
	ServerURL string `json:"serverUrl"`
}

func tokenHandler(issuer TokenIssuer, serverURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Checked before any other processing.
		if !issuer.Configured() {
			c.JSON(http.StatusInternalServerError, gin.H{"error": grant.NotConfiguredMessage})
			return
		}

		var req TokenRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
			return
		}
		identity, err := domain.NewIdentity(req.Name)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name: " + err.Error()})
			return
		}
		roomName, err := domain.NewRoomName(req.PartyID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "party_id: " + err.Error()})
			return
		}

		role := domain.RoleFromHostFlag(req.IsHost())
		token, err := issuer.Mint(string(identity), string(roomName), role)
		if err != nil {
			var cfgErr *grant.ConfigurationError
			if errors.As(err, &cfgErr) {
				c.JSON(http.StatusInternalServerError, gin.H{"error": grant.NotConfiguredMessage})
				return
			}
			log.Error().Err(err).Str("module", "adapters.http").Msg("mint grant")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
			return
		}

		log.Info().
			Str("module", "adapters.http").
			Str("identity", string(identity)).
			Str("room", string(roomName)).
			Str("role", role.String()).
			Msg("grant issued")
		c.JSON(http.StatusOK, TokenResponse{
			Identity:  string(identity),
			Token:     token,
			ServerURL: serverURL,
		})
	}
}
