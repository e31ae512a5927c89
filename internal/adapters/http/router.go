package http

import (
	"context"

	"github.com/dkeye/CoWatch/internal/adapters/signal"
	"github.com/dkeye/CoWatch/internal/config"
	rest "github.com/dkeye/CoWatch/internal/transport/http"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const clientTokenTTL = 3600 * 24 * 7

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

// ClientTokenMiddleware keeps a per-browser token in the cookie session so
// reconnects from the same browser show up under one token in the logs.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		token, _ := sess.Get("ct").(string)
		if token == "" {
			token = genClientToken()
			sess.Set("ct", token)
			if err := sess.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save client token")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// newEngine builds the engine with the middleware every route shares.
// ClientIP takes the first X-Forwarded-For hop, then X-Real-IP, then the
// remote address.
func newEngine(cfg *config.Config) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.RemoteIPHeaders = []string{"X-Forwarded-For", "X-Real-IP"}
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: clientTokenTTL, HttpOnly: true})
	r.Use(sessions.Sessions("CoWatchSessions", store))
	r.Use(ClientTokenMiddleware())
	return r
}

func SetupRouter(ctx context.Context, cfg *config.Config, videos rest.VideoService, ctrl *signal.SignalWSController) *gin.Engine {
	r := newEngine(cfg)

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")
	rest.RegisterVideoRoutes(api, videos)

	r.GET("/ws", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("ct", c.GetString("client_token")).Msg("ws endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	return r
}
