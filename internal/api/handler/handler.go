package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"garagechat/backend/internal/storage"
)

// Handler serves the message service API.
type Handler struct {
	Storage storage.Storage
	Auth    *Authenticator
	logger  zerolog.Logger
}

func NewHandler(s storage.Storage, auth *Authenticator, logger zerolog.Logger) *Handler {
	return &Handler{
		Storage: s,
		Auth:    auth,
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(h.logger), Metrics())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/auth/token", h.IssueToken)

	authed := r.Group("/", h.Auth.Required())
	{
		authed.GET("/ws", h.ServeWebSocket)

		messages := authed.Group("/messages")
		messages.GET("", h.ListRooms)
		messages.POST("", h.AppendMessage)
		messages.GET("/unread/count", h.UnreadCount)
		messages.GET("/:roomKey", h.GetHistory)
		messages.PATCH("/:roomKey/read", h.MarkRead)
	}
	return r
}
