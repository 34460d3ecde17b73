package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"riftline/internal/api"
	"riftline/internal/config"
	"riftline/internal/game"
	"riftline/internal/protocol"
	"riftline/internal/session"
)

const (
	worldWidth  = 15000.0
	worldHeight = 15000.0
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("💡 No .env file found, using environment variables only")
	}

	log.Println("🎮 ================================")
	log.Println("🎮  RIFTLINE - NETCODE SERVER")
	log.Println("🎮 ================================")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ config: %v", err)
	}
	log.Printf("🎮 Config: %d TPS, %dms budget, %d players max, port %d",
		cfg.Sim.TickRate, cfg.Sim.TickBudgetMs, cfg.Server.MaxPlayers, cfg.Server.Port)

	// Journal first: everything below records into it.
	journal := game.NewJournal()
	journalPath := getEnvWithDefault("JOURNAL_PATH", "journal.jsonl")
	if err := journal.Start(journalPath); err != nil {
		log.Printf("⚠️ Journal disabled: %v", err)
	} else {
		log.Printf("📝 Journal: %s", journalPath)
	}

	world := game.NewWorld(worldWidth, worldHeight, journal)
	seedStructures(world)

	gateway := game.NewGateway(cfg.Input, journal)
	gateway.SetRejectHook(api.RecordInputRejected)

	registry := session.NewRegistry(cfg.Server, world, gateway, journal)
	encoder := session.NewEncoder(registry, gateway, nil)
	encoder.SetEmitHook(func(deltas, bytes int, dropped bool) {
		api.RecordStateUpdate(bytes, dropped)
	})

	engine := game.NewEngine(cfg.Sim, world, gateway, encoder, journal)
	engine.SetTickHook(func(tick protocol.Tick, duration time.Duration, overrun bool) {
		api.RecordTick(duration, overrun)
		if tick%125 == 0 {
			api.UpdateEntityCount(world.EntityCount())
			total, _ := registry.Counts()
			api.UpdateSessionCount(total)
		}
	})

	if os.Getenv("DISABLE_DEBUG_SERVER") != "true" {
		if err := api.StartDebugServer(api.DefaultObservabilityConfig()); err != nil {
			log.Printf("⚠️ Debug server disabled: %v", err)
		}
	}

	server := api.NewServer(cfg.Server, registry, gateway, encoder, world, engine)

	registry.Start()
	engine.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-ctx.Done()
		log.Println("🛑 Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("⚠️ server shutdown: %v", err)
		}

		engine.Stop()
		registry.Stop()
		journal.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("❌ %v", err)
	}
	log.Println("👋 Goodbye")
}

// seedStructures places the per-side nexus and a tower line so the match has
// win conditions from tick one.
func seedStructures(world *game.World) {
	seeds := []struct {
		id     protocol.EntityID
		kind   protocol.EntityKind
		side   protocol.TeamID
		pos    game.Vec2
		health int
		radius float64
	}{
		{"nexus-blue", protocol.KindNexus, protocol.TeamBlue, game.Vec2{X: 800, Y: 800}, 5500, 150},
		{"nexus-red", protocol.KindNexus, protocol.TeamRed, game.Vec2{X: worldWidth - 800, Y: worldHeight - 800}, 5500, 150},
		{"tower-blue-1", protocol.KindTower, protocol.TeamBlue, game.Vec2{X: 3000, Y: 3000}, 3500, 88},
		{"tower-blue-2", protocol.KindTower, protocol.TeamBlue, game.Vec2{X: 5500, Y: 5500}, 3500, 88},
		{"tower-red-1", protocol.KindTower, protocol.TeamRed, game.Vec2{X: worldWidth - 3000, Y: worldHeight - 3000}, 3500, 88},
		{"tower-red-2", protocol.KindTower, protocol.TeamRed, game.Vec2{X: worldWidth - 5500, Y: worldHeight - 5500}, 3500, 88},
	}

	for _, s := range seeds {
		e := &game.Entity{
			ID:   s.id,
			Kind: s.kind,
			Side: s.side,
			Pos:  s.pos,
		}
		e.Behavior = game.NewStructure(e, s.health, s.radius)
		if err := world.QueueSpawn(e); err != nil {
			log.Fatalf("❌ seed %s: %v", s.id, err)
		}
	}
	log.Printf("🏰 Seeded %d structures", len(seeds))
}

func getEnvWithDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
