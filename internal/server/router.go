// Package server exposes the chat service over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/PaulBabatuyi/relaychat/internal/chat"
	"github.com/PaulBabatuyi/relaychat/internal/media"
	"github.com/PaulBabatuyi/relaychat/internal/metrics"
	"github.com/PaulBabatuyi/relaychat/internal/middleware"
	"github.com/PaulBabatuyi/relaychat/internal/push"
)

// Deps are the collaborators the router needs. Hub is nil when pushes go
// through an external gateway; /ws is then not mounted.
type Deps struct {
	Service *chat.Service
	Media   *media.Store
	Hub     *push.Hub
	Limiter *middleware.LimiterStore
	Env     string
}

// SetupRouter registers every route on a fresh gin engine.
func SetupRouter(d Deps) *gin.Engine {
	if d.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())
	r.Use(metrics.GinMiddleware())

	h := NewHandler(d.Service, d.Media)

	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if d.Limiter != nil {
		r.POST("/authenticate", middleware.GinRateLimit(d.Limiter), h.Authenticate)
	} else {
		r.POST("/authenticate", h.Authenticate)
	}
	r.POST("/send_message", h.SendMessage)
	r.GET("/get_chats", h.GetChats)
	r.GET("/get_messages", h.GetMessages)
	r.GET("/get_user", h.GetUser)
	r.POST("/upload_image", h.UploadImage)
	r.GET("/get_image/:hash", h.GetImage)

	if d.Hub != nil {
		r.GET("/ws", serveWS(d.Hub))
	}
	return r
}

// serveWS attaches a push device to the hub. The push token is the only
// credential: a device connects before its owner has an api key.
func serveWS(hub *push.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, errorBody(http.StatusBadRequest, "token is required"))
			return
		}
		if err := hub.ServeWS(c.Writer, c.Request, token); err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
		}
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		ev := log.Info()
		if status >= http.StatusInternalServerError {
			ev = log.Error()
		} else if status >= http.StatusBadRequest {
			ev = log.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Str("client_ip", c.ClientIP()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}
