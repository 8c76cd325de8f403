// Package httpapi exposes the guarded chat, reward, and status endpoints
// over gin, with JWT session auth and request field-size enforcement in
// front of every business handler.
package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lexiconlabs/tokengate/internal/config"
	"github.com/lexiconlabs/tokengate/internal/defense"
	"github.com/lexiconlabs/tokengate/internal/guard"
	"github.com/lexiconlabs/tokengate/internal/reward"
	"github.com/lexiconlabs/tokengate/internal/security"
	"github.com/lexiconlabs/tokengate/internal/status"
	"github.com/lexiconlabs/tokengate/internal/store"
)

// RegisterRoutes mounts the public API on the engine.
func RegisterRoutes(
	engine *gin.Engine,
	jwtCfg config.JWTConfig,
	g *guard.Guard,
	granter *reward.Granter,
	reporter *status.Reporter,
	convos *store.ConversationStore,
	limits defense.Limits,
) {
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := engine.Group("/v1")
	v1.Use(userAuthMiddleware(jwtCfg))

	chatHandler := NewChatHandler(g, limits)
	v1.POST("/chat", chatHandler.Send)

	rewardHandler := NewRewardHandler(granter, limits)
	v1.POST("/rewards/ad-view", rewardHandler.AdView)

	statusHandler := NewStatusHandler(reporter)
	v1.GET("/status", defense.Middleware(limits), statusHandler.Get)

	conversationHandler := NewConversationHandler(convos)
	v1.GET("/conversations/:id/messages", defense.Middleware(limits), conversationHandler.Messages)
}

// userAuthMiddleware validates user JWTs and loads the user ID into context.
// A valid token is enough; users without a subscription row are simply
// metered as free users downstream.
func userAuthMiddleware(jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(contextUserIDKey, claims.UserID)
		c.Next()
	}
}
