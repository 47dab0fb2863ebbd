package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hsingjui/openai-to-claude/internal/apierror"
	"github.com/hsingjui/openai-to-claude/internal/config"
)

const requestIDKey = "request_id"

// requestIDMiddleware tags each request with an id for log correlation,
// honoring a client-supplied X-Request-ID when present.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "*")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// authMiddleware checks the client key against the configured list.
// Keys arrive Anthropic-style in x-api-key or as a bearer token. An
// empty configured list leaves the gateway open.
func authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		keys := config.Current().APIKeys
		if len(keys) == 0 {
			c.Next()
			return
		}

		provided := c.GetHeader("x-api-key")
		if provided == "" {
			provided = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		for _, key := range keys {
			if provided != "" && provided == key {
				c.Next()
				return
			}
		}

		writeError(c, &apierror.Error{
			Type:    apierror.TypeAuthentication,
			Status:  http.StatusUnauthorized,
			Message: "invalid api key",
		})
		c.Abort()
	}
}
