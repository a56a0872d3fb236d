package http

import (
	"context"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtvoice/internal/adapters/bridge"
	"github.com/dkeye/rtvoice/internal/adapters/signal"
	"github.com/dkeye/rtvoice/internal/config"
	"github.com/dkeye/rtvoice/internal/core"
	transport "github.com/dkeye/rtvoice/internal/transport/http"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// Deps are the collaborators the router serves.
type Deps struct {
	// Config answers GET /api/config.
	Config core.ConfigProvider
	Bridge *bridge.Controller
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("RTVoiceSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	limiter := signal.NewRateLimiter(cfg.Limits.ConfigPerMinute, time.Minute)
	go pruneLoop(ctx, limiter)
	api.GET("/config", transport.ConfigHandler(deps.Config, limiter))

	if deps.Bridge != nil {
		api.GET("/health", transport.HealthHandler(deps.Bridge.Registry.Count))
		api.GET("/session", transport.SessionStateHandler(deps.Bridge.Registry))
		api.POST("/session/close", transport.SessionCloseHandler(deps.Bridge.Registry))
		api.GET("/ws/session", func(c *gin.Context) {
			log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws session endpoint hit")
			deps.Bridge.Handle(ctx, c)
		})
	}

	return r
}

func pruneLoop(ctx context.Context, rl *signal.RateLimiter) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := rl.Prune(); n > 0 {
				log.Debug().Str("module", "adapters.http").Int("pruned", n).Msg("rate limiter pruned")
			}
		}
	}
}
