package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"danmaku/internal/api"
	"danmaku/internal/config"
	"danmaku/internal/render"
	"danmaku/internal/sim"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "", "YAML/TOML/JSON config file layered over defaults")
	flag.Parse()

	if err := godotenv.Load("../.env"); err != nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🎮 ================================")
	log.Println("🎮  DANMAKU - BULLET CORE")
	log.Println("🎮 ================================")

	appConfig := config.Load()
	if *configPath != "" {
		cfg, err := config.LoadFile(*configPath)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		appConfig = cfg
		log.Printf("✅ Loaded config from %s", *configPath)
	} else if err := appConfig.Sim.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	simCfg := appConfig.Sim
	serverCfg := appConfig.Server

	log.Printf("🎮 Config: %d TPS, enemy cap %d (%s, %d workers), shot cap %d",
		simCfg.TickRate, simCfg.Enemy.Capacity, simCfg.Enemy.HitPolicy, simCfg.Enemy.Workers, simCfg.Shots.Capacity)

	engine, err := sim.NewEngine(sim.EngineConfigFrom(simCfg))
	if err != nil {
		log.Fatalf("❌ Engine: %v", err)
	}
	log.Printf("📝 Run ID: %s", engine.RunID())

	// An empty path keeps the event log in memory (counters only)
	if path := appConfig.Observability.EventLogPath; path != "" {
		log.Printf("📝 Event log: %s", path)
	}
	if err := engine.StartEventLog(appConfig.Observability.EventLogPath); err != nil {
		log.Printf("⚠️ Event log disabled: %v", err)
	}

	obs := appConfig.Observability
	debugSrv := api.StartDebugServer(api.ObservabilityConfig{
		Enabled:       obs.DebugEnabled,
		ListenAddr:    obs.DebugAddr,
		BasicAuthUser: obs.BasicAuthUser,
		BasicAuthPass: obs.BasicAuthPass,
	})

	if simCfg.Demo {
		sim.NewDirector(engine, sim.DefaultDirectorConfig()).Attach()
	}

	renderer := render.NewDebugRenderer(appConfig.Render.Width, appConfig.Render.Height)
	server := api.NewServer(engine, renderer, serverCfg)
	if serverCfg.AdminToken == "" {
		log.Println("⚠️ ADMIN_TOKEN not set, POST routes are open")
	}

	engine.Start()

	addr := ":" + strconv.Itoa(serverCfg.Port)
	errc := server.Start(addr)
	log.Printf("🌐 Stats:    http://localhost%s/api/stats", addr)
	log.Printf("🌐 Frame:    http://localhost%s/api/frame.png", addr)
	log.Printf("🌐 Feed:     ws://localhost%s/ws", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Printf("🛑 Received %v, shutting down...", sig)
	case err := <-errc:
		log.Printf("❌ API server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ API shutdown: %v", err)
	}
	if debugSrv != nil {
		debugSrv.Shutdown(ctx)
	}
	engine.Stop()
	engine.StopEventLog()

	st := engine.Stats()
	log.Printf("📊 Final: %d ticks, enemy spawned %d dropped %d, hits %d grazes %d, event log %d/%d dropped",
		st.Tick, st.Enemy.Spawned, st.Enemy.Dropped, st.Enemy.Hits, st.Enemy.Grazes,
		st.EventLog.Total, st.EventLog.Dropped)
	log.Println("👋 Goodbye!")
}
