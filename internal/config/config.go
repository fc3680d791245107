// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for simulation and server settings.
//
// Precedence: defaults < config file (LoadFile) < environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// =============================================================================
// SIMULATION CONFIGURATION
// =============================================================================

// PoolConfig sizes one bullet pool.
type PoolConfig struct {
	Capacity          int     `mapstructure:"capacity"`
	HitPolicy         string  `mapstructure:"hit_policy"` // "keep" or "destroy"
	Workers           int     `mapstructure:"workers"`
	ParallelThreshold int     `mapstructure:"parallel_threshold"`
	GridCellSize      float64 `mapstructure:"grid_cell_size"`
}

// PlayfieldConfig is the cull region around the nominal [-1, 1] playfield.
type PlayfieldConfig struct {
	Margin float64 `mapstructure:"margin"`
}

// PlayerConfig is the initial player hit point and graze circle.
type PlayerConfig struct {
	X           float64 `mapstructure:"x"`
	Y           float64 `mapstructure:"y"`
	HitRadius   float64 `mapstructure:"hit_radius"`
	GrazeRadius float64 `mapstructure:"graze_radius"`
}

// SimConfig holds the fixed-tick driver settings.
type SimConfig struct {
	TickRate         int             `mapstructure:"tick_rate"`
	CommandQueueSize int             `mapstructure:"command_queue_size"`
	Enemy            PoolConfig      `mapstructure:"enemy"`
	Shots            PoolConfig      `mapstructure:"shots"`
	Playfield        PlayfieldConfig `mapstructure:"playfield"`
	Player           PlayerConfig    `mapstructure:"player"`
	Demo             bool            `mapstructure:"demo"` // Run the built-in pattern emitter
}

// DefaultSim returns the default simulation configuration.
func DefaultSim() SimConfig {
	return SimConfig{
		TickRate:         60,
		CommandQueueSize: 4096,
		Enemy: PoolConfig{
			Capacity:          8192,
			HitPolicy:         "keep",
			Workers:           1,
			ParallelThreshold: 4096,
			GridCellSize:      0.25,
		},
		Shots: PoolConfig{
			Capacity:          512,
			HitPolicy:         "destroy",
			Workers:           1,
			ParallelThreshold: 4096,
			GridCellSize:      0.25,
		},
		Playfield: PlayfieldConfig{Margin: 0.5},
		Player: PlayerConfig{
			X:           0,
			Y:           -0.8,
			HitRadius:   0.01,
			GrazeRadius: 0.05,
		},
		Demo: true,
	}
}

// SimFromEnv returns simulation configuration with environment variable overrides.
func SimFromEnv() SimConfig {
	cfg := DefaultSim()
	applySimEnv(&cfg)
	return cfg
}

func applySimEnv(cfg *SimConfig) {
	if v := getEnvInt("TICK_RATE", 0); v > 0 {
		cfg.TickRate = v
	}
	if v := getEnvInt("COMMAND_QUEUE_SIZE", 0); v > 0 {
		cfg.CommandQueueSize = v
	}
	if v := getEnvInt("ENEMY_CAPACITY", 0); v > 0 {
		cfg.Enemy.Capacity = v
	}
	if v := getEnvInt("SHOT_CAPACITY", 0); v > 0 {
		cfg.Shots.Capacity = v
	}
	if v := getEnvInt("SIM_WORKERS", 0); v > 0 {
		cfg.Enemy.Workers = v
	}
	if v := os.Getenv("HIT_POLICY"); v != "" {
		cfg.Enemy.HitPolicy = v
	}
	if v := getEnvFloat("PLAYFIELD_MARGIN", -1); v >= 0 {
		cfg.Playfield.Margin = v
	}
	cfg.Demo = getEnvBool("DEMO_PATTERNS", cfg.Demo)
}

// Validate rejects settings the simulation cannot run with.
func (c SimConfig) Validate() error {
	if c.TickRate <= 0 {
		return fmt.Errorf("tick_rate must be positive, got %d", c.TickRate)
	}
	if c.CommandQueueSize <= 0 {
		return fmt.Errorf("command_queue_size must be positive, got %d", c.CommandQueueSize)
	}
	for name, p := range map[string]PoolConfig{"enemy": c.Enemy, "shots": c.Shots} {
		if p.Capacity <= 0 {
			return fmt.Errorf("%s.capacity must be positive, got %d", name, p.Capacity)
		}
		if p.HitPolicy != "keep" && p.HitPolicy != "destroy" {
			return fmt.Errorf("%s.hit_policy must be keep or destroy, got %q", name, p.HitPolicy)
		}
	}
	if c.Playfield.Margin < 0 {
		return fmt.Errorf("playfield.margin must not be negative, got %v", c.Playfield.Margin)
	}
	if c.Player.HitRadius < 0 || c.Player.GrazeRadius < c.Player.HitRadius {
		return fmt.Errorf("player radii invalid: hit %v graze %v", c.Player.HitRadius, c.Player.GrazeRadius)
	}
	return nil
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	RateLimit      float64  `mapstructure:"rate_limit"` // Requests per second per IP
	RateBurst      int      `mapstructure:"rate_burst"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	BroadcastHz    int      `mapstructure:"broadcast_hz"` // WebSocket snapshot rate
	MaxWSClients   int      `mapstructure:"max_ws_clients"`
	AdminToken     string   `mapstructure:"admin_token"` // Bearer token for POST routes; empty leaves them open
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:           3000,
		RateLimit:      20,
		RateBurst:      40,
		AllowedOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		BroadcastHz:    10,
		MaxWSClients:   32,
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()
	applyServerEnv(&cfg)
	return cfg
}

func applyServerEnv(cfg *ServerConfig) {
	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if v := getEnvFloat("RATE_LIMIT", 0); v > 0 {
		cfg.RateLimit = v
	}
	if v := getEnvInt("RATE_BURST", 0); v > 0 {
		cfg.RateBurst = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = strings.Split(v, ",")
	}
	if v := getEnvInt("BROADCAST_HZ", 0); v > 0 {
		cfg.BroadcastHz = v
	}
	if v := getEnvInt("MAX_WS_CLIENTS", 0); v > 0 {
		cfg.MaxWSClients = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		cfg.AdminToken = v
	}
}

// =============================================================================
// OBSERVABILITY CONFIGURATION
// =============================================================================

// ObservabilityConfig holds debug server and event log settings.
type ObservabilityConfig struct {
	DebugEnabled  bool   `mapstructure:"debug_enabled"`
	DebugAddr     string `mapstructure:"debug_addr"` // Localhost only
	BasicAuthUser string `mapstructure:"basic_auth_user"`
	BasicAuthPass string `mapstructure:"basic_auth_pass"`
	EventLogPath  string `mapstructure:"event_log_path"` // Empty disables file output
}

// DefaultObservability returns safe defaults.
func DefaultObservability() ObservabilityConfig {
	return ObservabilityConfig{
		DebugEnabled: true,
		DebugAddr:    "127.0.0.1:6060",
		EventLogPath: "",
	}
}

func applyObservabilityEnv(cfg *ObservabilityConfig) {
	cfg.DebugEnabled = getEnvBool("DEBUG_SERVER", cfg.DebugEnabled)
	if v := os.Getenv("DEBUG_ADDR"); v != "" {
		cfg.DebugAddr = v
	}
	if v := os.Getenv("DEBUG_USER"); v != "" {
		cfg.BasicAuthUser = v
		cfg.BasicAuthPass = os.Getenv("DEBUG_PASS")
	}
	if v := os.Getenv("EVENT_LOG_PATH"); v != "" {
		cfg.EventLogPath = v
	}
}

// =============================================================================
// RENDER CONFIGURATION
// =============================================================================

// RenderConfig sizes the debug PNG frames.
type RenderConfig struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// DefaultRender returns a 3:4 portrait canvas like a vertical shooter.
func DefaultRender() RenderConfig {
	return RenderConfig{Width: 480, Height: 640}
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Sim           SimConfig           `mapstructure:"sim"`
	Server        ServerConfig        `mapstructure:"server"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Render        RenderConfig        `mapstructure:"render"`
}

// Default returns the complete configuration without overrides.
func Default() AppConfig {
	return AppConfig{
		Sim:           DefaultSim(),
		Server:        DefaultServer(),
		Observability: DefaultObservability(),
		Render:        DefaultRender(),
	}
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	cfg := Default()
	applyEnv(&cfg)
	return cfg
}

// LoadFile layers a YAML/TOML/JSON file over the defaults, then the
// environment over the file. Nested keys can also be set as DANMAKU_SIM_TICK_RATE.
func LoadFile(path string) (AppConfig, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("DANMAKU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}

	applyEnv(&cfg)
	if err := cfg.Sim.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	applySimEnv(&cfg.Sim)
	applyServerEnv(&cfg.Server)
	applyObservabilityEnv(&cfg.Observability)
	if w := getEnvInt("RENDER_WIDTH", 0); w > 0 {
		cfg.Render.Width = w
	}
	if h := getEnvInt("RENDER_HEIGHT", 0); h > 0 {
		cfg.Render.Height = h
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
