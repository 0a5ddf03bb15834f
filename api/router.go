// Package api exposes the chat use cases over REST and mounts the websocket gateway.
package api

import (
	"log/slog"
	"net/http"
	"pet-chat/auth"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter wires the routes. ws is mounted on GET /ws when not nil.
// An empty origin list or "*" allows every origin.
func NewRouter(handler *Handler, authenticator *auth.Authenticator, ws http.Handler, allowedOrigins []string, log *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))
	router.Use(cors.New(corsConfig(allowedOrigins)))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if ws != nil {
		router.GET("/ws", gin.WrapH(ws))
	}

	api := router.Group("/api", authenticator.Interceptor())
	{
		api.POST("/chats", handler.OpenConversation)
		api.GET("/chats", handler.Conversations)

		api.POST("/messages", handler.SendMessage)
		api.GET("/messages/unread/count", handler.UnreadCounts)
		api.PATCH("/messages/read/:chatId", handler.MarkRead)
		api.GET("/messages/:chatId", handler.Messages)

		api.GET("/users/:userId/presence", handler.Presence)
	}
	return router
}

func corsConfig(allowedOrigins []string) cors.Config {
	config := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, origin := range allowedOrigins {
		if origin == "*" {
			config.AllowAllOrigins = true
			return config
		}
	}
	if len(allowedOrigins) == 0 {
		config.AllowAllOrigins = true
		return config
	}
	config.AllowOrigins = allowedOrigins
	return config
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("Request served",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_us", time.Since(start).Microseconds())
	}
}
