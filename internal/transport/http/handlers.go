package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtvoice/internal/adapters/credential"
	"github.com/dkeye/rtvoice/internal/app"
	"github.com/dkeye/rtvoice/internal/core"
)

// Limiter admits requests per client token.
type Limiter interface {
	Allow(key string) bool
}

// ConfigHandler serves GET /api/config: a fresh SessionConfig per call, or
// {error} with a non-2xx status.
func ConfigHandler(cp core.ConfigProvider, limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetString("client_token")
		if limiter != nil && !limiter.Allow(token) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many configuration requests"})
			return
		}

		cfg, err := cp.Fetch(c.Request.Context())
		if err != nil {
			log.Error().Err(err).Str("module", "transport.http").Str("sid", token).Msg("config request failed")
			status := http.StatusBadGateway
			if errors.Is(err, credential.ErrNoAPIKey) || errors.Is(err, credential.ErrNoSessionsURL) {
				status = http.StatusInternalServerError
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, cfg)
	}
}

// HealthHandler reports the number of connected UI clients.
func HealthHandler(clients func() int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "clients": clients()})
	}
}

// SessionStateHandler serves GET /api/session: the state of the caller's
// bridge session.
func SessionStateHandler(reg *app.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := reg.Get(core.SessionID(c.GetString("client_token")))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no session"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"state": sess.State().String()})
	}
}

// SessionCloseHandler serves POST /api/session/close. It ends the caller's
// bridge session (the page may be gone, e.g. sent with navigator.sendBeacon).
func SessionCloseHandler(reg *app.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid := c.GetString("client_token")
		if !reg.Cancel(core.SessionID(sid)) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no session"})
			return
		}
		log.Info().Str("module", "transport.http").Str("sid", sid).Msg("session closed on request")
		c.Status(http.StatusNoContent)
	}
}
