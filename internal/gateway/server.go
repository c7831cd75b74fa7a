// Package gateway is the dispatcher: it routes inbound endpoints to
// credential selection, request translation, the upstream call, the stream
// relay, and request logging.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/llm-gate/llm-gate/internal/auth"
	"github.com/llm-gate/llm-gate/internal/config"
	"github.com/llm-gate/llm-gate/internal/logging"
	"github.com/llm-gate/llm-gate/internal/registry"
	"github.com/llm-gate/llm-gate/internal/resilience"
	"github.com/llm-gate/llm-gate/internal/sigcache"
	"github.com/llm-gate/llm-gate/internal/store"
	"github.com/llm-gate/llm-gate/internal/translator/stream"
	"github.com/llm-gate/llm-gate/internal/upstream"
)

// Server wires the gateway state together: config, credentials, the shared
// HTTP client, per-provider breakers, and the request-log store.
type Server struct {
	cfg       *config.Config
	auth      *auth.Store
	refresher *auth.Refresher
	client    *http.Client
	logs      store.Backend
	sigs      *sigcache.Cache
	ids       *stream.IDSource

	rr         map[registry.Provider]*atomic.Uint64
	breakers   map[registry.Provider]*resilience.StreamingBreaker
	kiroModels *registry.ModelCache
}

// New builds the server. logs may be nil to disable request logging.
func New(cfg *config.Config, authStore *auth.Store, logs store.Backend, client *http.Client) *Server {
	s := &Server{
		cfg:    cfg,
		auth:   authStore,
		client: client,
		logs:   logs,
		sigs:   sigcache.New(),
		ids:    &stream.IDSource{},
		refresher: &auth.Refresher{
			Client:             client,
			Store:              authStore,
			GoogleClientID:     cfg.GoogleClientID,
			GoogleClientSecret: cfg.GoogleClientSecret,
		},
		rr:         map[registry.Provider]*atomic.Uint64{},
		breakers:   map[registry.Provider]*resilience.StreamingBreaker{},
		kiroModels: registry.NewModelCache(time.Hour),
	}
	for _, p := range registry.All() {
		s.rr[p] = &atomic.Uint64{}
		s.breakers[p] = resilience.NewStreamingBreaker(
			resilience.DefaultBreakerConfig(string(p), breakerSuccess))
	}
	return s
}

// breakerSuccess keeps client-side mistakes from tripping the breaker.
func breakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var ae *apiError
	return errors.As(err, &ae) && ae.Status < http.StatusInternalServerError
}

// Router builds the gin engine with all public routes.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": "llm-gate", "status": "ok"})
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	for _, p := range []string{
		"/oauth2callback", "/google/callback", "/anthropic/callback",
		"/codex/callback", "/antigravity/callback",
	} {
		r.GET(p, oauthLanding)
	}

	api := r.Group("/", s.requireAPIKey)
	api.GET("/v1/models", s.handleListModels)
	api.POST("/v1/chat/completions", s.handleChatCompletions)
	api.POST("/v1/completions", s.handleCompletionsStub)
	api.POST("/v1/messages", s.handleMessages)
	api.GET("/v1beta/models", s.handleListModelsGemini)
	api.POST("/v1beta/models/:action", s.handleGeminiAction)
	return r
}

// oauthLanding answers callback paths hit outside a login flow; the real
// handlers live on the one-shot servers the login commands bind.
func oauthLanding(c *gin.Context) {
	c.String(http.StatusOK, "No login in progress. Start one with the login command.")
}

// requireAPIKey enforces the configured inbound keys. Accepts Bearer
// tokens, x-api-key, x-goog-api-key, and the ?key= query parameter.
func (s *Server) requireAPIKey(c *gin.Context) {
	if len(s.cfg.APIKeys) == 0 {
		c.Next()
		return
	}
	key := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if key == "" {
		key = c.GetHeader("x-api-key")
	}
	if key == "" {
		key = c.GetHeader("x-goog-api-key")
	}
	if key == "" {
		key = c.Query("key")
	}
	for _, want := range s.cfg.APIKeys {
		if key == want {
			c.Set("api_key", key)
			c.Next()
			return
		}
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{
		"message": "invalid or missing API key",
		"type":    "authentication_error",
		"code":    http.StatusUnauthorized,
	}})
}

// Run serves until ctx is cancelled, then drains with a 10 s grace period.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr(),
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Infof("listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logging.Infof("server stopped")
	return nil
}

// Client exposes the shared upstream HTTP client.
func (s *Server) Client() *http.Client { return s.client }

// TokenRefresher exposes the credential refresher so background jobs reuse
// its rate limit and single-flight behavior.
func (s *Server) TokenRefresher() *auth.Refresher { return s.refresher }

// NewUpstreamClient builds the shared client from config.
func NewUpstreamClient(cfg *config.Config) (*http.Client, error) {
	return upstream.NewClient(cfg.ProxyURL)
}
