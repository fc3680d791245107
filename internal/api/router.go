package api

import (
	"io"
	"net/http"

	"danmaku/internal/bullet"
	"danmaku/internal/sim"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// EngineInterface is the slice of sim.Engine the handlers use.
// Keep it minimal so tests can fake it without a tick loop.
type EngineInterface interface {
	Stats() sim.EngineStats
	// ViewSnapshot calls fn with the latest frame; fn must not retain it
	ViewSnapshot(fn func(*sim.Frame))
	SpawnNow(pool sim.PoolID, spec bullet.SpawnSpec) (bullet.Handle, error)
	SpawnRingNow(pool sim.PoolID, spec bullet.SpawnSpec, count int, spread float64) (int, error)
	ClearNow(pool sim.PoolID, f bullet.Filter) ([]bullet.Removed, error)
	ResetAll() int
	SetPlayer(p bullet.Player)
	Player() bullet.Player
}

// FrameRenderer encodes a frame as PNG (render.DebugRenderer).
type FrameRenderer interface {
	EncodePNG(w io.Writer, f *sim.Frame) error
}

// RouterConfig holds the router's dependencies.
//
//	router := api.NewRouter(api.RouterConfig{
//	    Engine:          fakeEngine,
//	    RateLimitConfig: &api.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
//	    DisableLogging:  true,
//	})
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Engine is required
	Engine EngineInterface

	// Renderer backs /api/frame.png; nil answers 503
	Renderer FrameRenderer

	// RateLimiter overrides RateLimitConfig when set. The caller owns it.
	RateLimiter     *IPRateLimiter
	RateLimitConfig *RateLimitConfig

	// CORSOrigins defaults to localhost on any port
	CORSOrigins []string

	// AdminToken guards the POST routes when non-empty
	AdminToken string

	// WebSocket mounts /ws when set
	WebSocket http.HandlerFunc

	DisableLogging bool
}

type routerHandlers struct {
	engine   EngineInterface
	renderer FrameRenderer
}

// DefaultCORSOrigins allows local debug tools
var DefaultCORSOrigins = []string{
	"http://localhost:*",
	"http://127.0.0.1:*",
}

// NewRouter builds the HTTP router. It starts no goroutines other than
// the rate limiter's cleanup when it has to create one, and opens no
// listeners, so it is safe with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	// Rate limit before CORS to reject early
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rlc := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rlc = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rlc)
	}
	r.Use(rateLimiter.Middleware)

	origins := cfg.CORSOrigins
	if origins == nil {
		origins = DefaultCORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	h := &routerHandlers{engine: cfg.Engine, renderer: cfg.Renderer}
	auth := NewTokenAuth(cfg.AdminToken)

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", h.handleGetStats)
		r.Get("/snapshot", h.handleGetSnapshot)
		r.Get("/frame.png", h.handleGetFrame)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware)
			r.Use(middleware.AllowContentType("application/json"))

			r.Post("/spawn", h.handleSpawn)
			r.Post("/spawn/ring", h.handleSpawnRing)
			r.Post("/clear", h.handleClear)
			r.Post("/reset", h.handleReset)
			r.Post("/player", h.handleSetPlayer)
		})
	})

	if cfg.WebSocket != nil {
		r.Get("/ws", cfg.WebSocket)
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/api/stats", http.StatusFound)
	})

	return r
}
