package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Sim.Validate(); err != nil {
		t.Fatalf("default sim config invalid: %v", err)
	}
	if cfg.Sim.Player.HitRadius != 0.01 || cfg.Sim.Player.GrazeRadius != 0.05 {
		t.Errorf("player radii = %v/%v", cfg.Sim.Player.HitRadius, cfg.Sim.Player.GrazeRadius)
	}
	if cfg.Observability.DebugAddr != "127.0.0.1:6060" {
		t.Errorf("debug addr = %q, want localhost", cfg.Observability.DebugAddr)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TICK_RATE", "120")
	t.Setenv("ENEMY_CAPACITY", "100")
	t.Setenv("PLAYFIELD_MARGIN", "0")
	t.Setenv("DEMO_PATTERNS", "false")
	t.Setenv("ALLOWED_ORIGINS", "http://a,http://b")
	t.Setenv("PORT", "not-a-number")

	cfg := Load()
	if cfg.Sim.TickRate != 120 {
		t.Errorf("TickRate = %d, want 120", cfg.Sim.TickRate)
	}
	if cfg.Sim.Enemy.Capacity != 100 {
		t.Errorf("Enemy.Capacity = %d, want 100", cfg.Sim.Enemy.Capacity)
	}
	if cfg.Sim.Playfield.Margin != 0 {
		t.Errorf("Margin = %v, want 0", cfg.Sim.Playfield.Margin)
	}
	if cfg.Sim.Demo {
		t.Error("Demo should be disabled")
	}
	if len(cfg.Server.AllowedOrigins) != 2 {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("invalid PORT should keep default, got %d", cfg.Server.Port)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "danmaku.yaml")
	data := []byte(`
sim:
  tick_rate: 30
  enemy:
    capacity: 2048
    hit_policy: destroy
  playfield:
    margin: 1.2
server:
  port: 8080
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Sim.TickRate != 30 || cfg.Sim.Enemy.Capacity != 2048 || cfg.Sim.Enemy.HitPolicy != "destroy" {
		t.Errorf("sim = %+v", cfg.Sim)
	}
	if cfg.Sim.Playfield.Margin != 1.2 {
		t.Errorf("margin = %v, want 1.2", cfg.Sim.Playfield.Margin)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	// Untouched keys keep their defaults
	if cfg.Sim.Shots.Capacity != DefaultSim().Shots.Capacity {
		t.Errorf("shots capacity = %d, want default", cfg.Sim.Shots.Capacity)
	}

	t.Setenv("TICK_RATE", "90")
	cfg, err = LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Sim.TickRate != 90 {
		t.Errorf("env should override file, got %d", cfg.Sim.TickRate)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(path, []byte("sim:\n  enemy:\n    hit_policy: explode\n"), 0o644)
	if _, err := LoadFile(path); err == nil {
		t.Error("expected validation error for unknown hit policy")
	}
}

func TestSimValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SimConfig)
	}{
		{"zero tick rate", func(c *SimConfig) { c.TickRate = 0 }},
		{"zero queue", func(c *SimConfig) { c.CommandQueueSize = 0 }},
		{"zero capacity", func(c *SimConfig) { c.Shots.Capacity = 0 }},
		{"negative margin", func(c *SimConfig) { c.Playfield.Margin = -0.1 }},
		{"graze below hit", func(c *SimConfig) { c.Player.GrazeRadius = 0.001 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSim()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
}
