package http

import (
	"net/http"

	"github.com/dkeye/peerlink/internal/adapters/signal"
	"github.com/dkeye/peerlink/internal/app/session"
	"github.com/dkeye/peerlink/internal/config"
	"github.com/dkeye/peerlink/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type StatusProvider interface {
	Status() session.Status
}

// SetupRouter serves the session status, prometheus metrics and, when acceptor is set,
// the websocket signaling endpoint.
func SetupRouter(cfg *config.Config, status StatusProvider, m *metrics.Metrics, acceptor *signal.Acceptor) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/metrics", gin.WrapH(m.Handler()))

	api := r.Group("/api")
	api.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, status.Status())
	})

	if acceptor != nil {
		api.GET("/ws/signal", func(c *gin.Context) {
			if err := acceptor.Upgrade(c.Writer, c.Request); err != nil {
				log.Warn().Str("module", "adapters.http").Err(err).Msg("signal upgrade refused")
				return
			}
		})
	}

	log.Info().Str("module", "adapters.http").Bool("ws_signal", acceptor != nil).Msg("router setup")
	return r
}
