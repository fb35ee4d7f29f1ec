// Package api exposes the proxy's HTTP surface: a health probe plus the
// Responses endpoint that authenticates, rewrites, and forwards each call to
// the Codex backend.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sumeet/opencode-openai-codex-auth/internal/auth"
	"github.com/sumeet/opencode-openai-codex-auth/internal/config"
	"github.com/sumeet/opencode-openai-codex-auth/internal/errlog"
	"github.com/sumeet/opencode-openai-codex-auth/internal/logging"
	"github.com/sumeet/opencode-openai-codex-auth/internal/upstream"
)

// CredentialSource yields fresh credentials for one upstream call.
type CredentialSource interface {
	EnsureFresh(ctx context.Context) (*auth.Credentials, error)
}

// Caller performs the upstream request.
type Caller interface {
	Do(ctx context.Context, path string, body []byte, creds *auth.Credentials, hints upstream.Hints) (*http.Response, error)
}

// InstructionSource yields the base instruction text.
type InstructionSource interface {
	Get(ctx context.Context) string
}

// Server is one isolated proxy instance. It owns all mutable state, so
// separate instances never interfere.
type Server struct {
	cfg          *config.Config
	engine       *gin.Engine
	server       *http.Server
	creds        CredentialSource
	caller       Caller
	instructions InstructionSource
	errors       *errlog.Logger
	log          *logging.Entry
}

// NewServer wires a proxy instance. errors may be nil to disable the error
// log.
func NewServer(cfg *config.Config, creds CredentialSource, caller Caller, instructions InstructionSource, errors *errlog.Logger) *Server {
	if !cfg.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.Use(requestLogger(), recovery())

	s := &Server{
		cfg:          cfg,
		engine:       engine,
		creds:        creds,
		caller:       caller,
		instructions: instructions,
		errors:       errors,
		log:          logging.WithField("component", "api"),
	}
	s.registerRoutes()

	s.server = &http.Server{
		Addr:    cfg.Addr(),
		Handler: engine,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	s.engine.POST("/*path", s.handleProxy)

	// The POST wildcard makes every path method-matched, so NoMethod must
	// distinguish real routes from unroutable paths to keep the 404 surface.
	s.engine.NoMethod(func(c *gin.Context) {
		if _, ok := backendRoute(c.Request.URL.Path); ok || c.Request.URL.Path == "/health" {
			writeStatusError(c, errMethodNotAllowed)
			return
		}
		writeStatusError(c, errNotFound)
	})
	s.engine.NoRoute(func(c *gin.Context) {
		writeStatusError(c, errNotFound)
	})
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.WithField("addr", s.server.Addr).Info("proxy listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
