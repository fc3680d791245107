// =============================================================================
// DANMAKU - HEADLESS RUNNER
// =============================================================================
// Runs the simulation without a server or wall clock:
// - Advances a fixed number of ticks as fast as possible
// - Writes a PNG frame every -every ticks (0 disables frames)
// - Optionally writes the JSONL event log
//
// USAGE:
//   go run ./cmd/headless -ticks 1200 -every 60 -out frames
// =============================================================================
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"danmaku/internal/config"
	"danmaku/internal/render"
	"danmaku/internal/sim"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "", "config file layered over defaults")
	ticks := flag.Int("ticks", 1200, "ticks to simulate")
	every := flag.Int("every", 60, "write a frame every N ticks, 0 disables")
	outDir := flag.String("out", "frames", "frame output directory")
	eventLog := flag.String("events", "", "JSONL event log path")
	flag.Parse()

	if err := godotenv.Load(".env"); err != nil {
		log.Println("💡 No .env file found, using environment variables only")
	}

	appConfig := config.Load()
	if *configPath != "" {
		cfg, err := config.LoadFile(*configPath)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		appConfig = cfg
	}

	engine, err := sim.NewEngine(sim.EngineConfigFrom(appConfig.Sim))
	if err != nil {
		log.Fatalf("❌ Engine: %v", err)
	}
	if err := engine.StartEventLog(*eventLog); err != nil {
		log.Fatalf("❌ Event log: %v", err)
	}
	defer engine.StopEventLog()

	sim.NewDirector(engine, sim.DefaultDirectorConfig()).Attach()

	var renderer *render.DebugRenderer
	if *every > 0 {
		if err := os.MkdirAll(*outDir, 0o755); err != nil {
			log.Fatalf("❌ Output dir: %v", err)
		}
		renderer = render.NewDebugRenderer(appConfig.Render.Width, appConfig.Render.Height)
	}

	log.Printf("🎮 Simulating %d ticks (run %s)", *ticks, engine.RunID())
	start := time.Now()
	frames := 0

	for i := 1; i <= *ticks; i++ {
		engine.Advance(1)
		if renderer == nil || i%*every != 0 {
			continue
		}
		if err := writeFrame(engine, renderer, filepath.Join(*outDir, fmt.Sprintf("frame_%06d.png", i))); err != nil {
			log.Printf("⚠️ Frame %d: %v", i, err)
			continue
		}
		frames++
	}

	elapsed := time.Since(start)
	st := engine.Stats()
	log.Printf("📊 %d ticks in %v (%.1f µs/tick), %d frames", st.Tick, elapsed,
		float64(elapsed.Microseconds())/float64(max(st.Tick, 1)), frames)
	log.Printf("📊 Enemy: spawned %d, culled %d, cleared %d, dropped %d, hits %d, grazes %d",
		st.Enemy.Spawned, st.Enemy.Culled, st.Enemy.Cleared, st.Enemy.Dropped, st.Enemy.Hits, st.Enemy.Grazes)
	log.Printf("📊 Shots: spawned %d, target hits %d", st.Shots.Spawned, st.TargetHits)
}

func writeFrame(engine *sim.Engine, r *render.DebugRenderer, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	var encErr error
	engine.ViewSnapshot(func(frame *sim.Frame) {
		encErr = r.EncodePNG(f, frame)
	})
	if cerr := f.Close(); encErr == nil {
		encErr = cerr
	}
	return encErr
}
