package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"danmaku/internal/config"

	"github.com/go-chi/chi/v5"
)

// Server combines the router with the WebSocket hub.
type Server struct {
	engine      EngineInterface
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	http        *http.Server
}

// NewServer wires the router and hub from server config.
//
// Background workers do not start until Start, so tests can construct a
// Server and use Router() directly.
func NewServer(engine EngineInterface, renderer FrameRenderer, cfg config.ServerConfig) *Server {
	s := &Server{
		engine: engine,
		wsHub: NewWebSocketHub(HubConfig{
			MaxClients:     cfg.MaxWSClients,
			AllowedOrigins: cfg.AllowedOrigins,
			BroadcastHz:    cfg.BroadcastHz,
		}),
		rateLimiter: NewIPRateLimiter(RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit,
			Burst:             cfg.RateBurst,
			CleanupInterval:   DefaultRateLimitConfig.CleanupInterval,
		}),
	}

	s.router = NewRouter(RouterConfig{
		Engine:      engine,
		Renderer:    renderer,
		RateLimiter: s.rateLimiter,
		CORSOrigins: cfg.AllowedOrigins,
		AdminToken:  cfg.AdminToken,
		WebSocket:   s.wsHub.HandleWebSocket,
	})
	return s
}

// Router returns the HTTP handler for httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the snapshot feed
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Start launches the hub and serves addr in the background. Listen errors
// other than a clean shutdown are sent on the returned channel.
func (s *Server) Start(addr string) <-chan error {
	go s.wsHub.Run()
	s.wsHub.StartBroadcastLoop(s.engine)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("🌐 API server starting on %s", addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	return errc
}

// Shutdown stops accepting requests, waits for in-flight ones, then stops
// the hub and rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}
	s.wsHub.Stop()
	s.rateLimiter.Stop()
	return err
}
