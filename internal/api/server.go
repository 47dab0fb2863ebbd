// Package api provides the HTTP server exposing the Messages-protocol
// surface backed by a chat-completions backend.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hsingjui/openai-to-claude/internal/config"
	"github.com/hsingjui/openai-to-claude/internal/logging"
	log "github.com/hsingjui/openai-to-claude/internal/logging"
	"github.com/hsingjui/openai-to-claude/internal/upstream"
)

// Server hosts the gateway endpoints.
type Server struct {
	engine *gin.Engine

	mu          sync.Mutex
	backend     *upstream.Client
	backendConf config.OpenAIConfig
}

// NewServer builds the router with middleware and routes registered.
func NewServer() *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(requestIDMiddleware())
	engine.Use(logging.GinLogrusLogger())
	engine.Use(logging.GinLogrusRecovery())
	engine.Use(corsMiddleware())

	s := &Server{engine: engine}

	engine.GET("/health", s.handleHealth)

	v1 := engine.Group("/v1", authMiddleware())
	v1.POST("/messages", s.handleMessages)
	v1.POST("/messages/count_tokens", s.handleCountTokens)

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// client returns the backend client for the given snapshot, rebuilding
// it only when the backend settings actually changed so the circuit
// breaker keeps its state across config reloads.
func (s *Server) client(cfg *config.Config) *upstream.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend == nil || s.backendConf != cfg.OpenAI {
		s.backend = upstream.NewClient(cfg.OpenAI)
		s.backendConf = cfg.OpenAI
	}
	return s.backend
}

// Run serves until ctx is cancelled, then shuts down draining in-flight
// requests.
func (s *Server) Run(ctx context.Context, cfg *config.Config) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
