// Package http wires the gin router: session-based handshake identity,
// the websocket endpoint, and the thin CRUD surface around the
// coordinator.
package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkmln/parley/internal/adapters/ws"
	"github.com/dkmln/parley/internal/app"
	"github.com/dkmln/parley/internal/blob"
	"github.com/dkmln/parley/internal/config"
	"github.com/dkmln/parley/internal/store"
)

const sessionUserKey = "uid"

// IdentityMiddleware copies the session-held user id into the request
// context. Credential verification itself is an upstream concern; this
// layer only carries the already-established identity.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		if v, ok := s.Get(sessionUserKey).(string); ok && v != "" {
			c.Set("user_id", v)
		}
		c.Next()
	}
}

// RequireIdentity rejects requests that never completed the handshake.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("user_id") == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		c.Next()
	}
}

type Deps struct {
	Coord *app.Coordinator
	WS    *ws.Controller
	Users store.UserStore
	Rooms store.RoomStore
	Msgs  store.MessageStore
	Blobs blob.Store
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

	cookieStore := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ParleySession", cookieStore))
	r.Use(IdentityMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &handlers{deps: deps}

	api := r.Group("/api")
	api.POST("/session", h.createSession)

	authed := api.Group("")
	authed.Use(RequireIdentity())
	authed.GET("/ws", func(c *gin.Context) {
		deps.WS.HandleWS(ctx, c)
	})
	authed.GET("/users", h.listUsers)
	authed.GET("/rooms", h.listRooms)
	authed.POST("/rooms", h.createRoom)
	authed.POST("/rooms/direct", h.openDirect)
	authed.GET("/rooms/:id/messages", h.listMessages)
	authed.POST("/attachments", h.uploadAttachment)
	authed.GET("/attachments/:id", h.getAttachment)

	return r
}
