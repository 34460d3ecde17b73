package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"riftline/internal/client"
	"riftline/internal/config"
	"riftline/internal/protocol"
)

// A headless client: connects, wanders, and prints prediction stats. Useful
// for soaking the server and for watching reconciliation behavior under real
// network conditions.
func main() {
	var (
		serverURL = flag.String("server", "ws://localhost:3000/ws", "websocket endpoint")
		playerID  = flag.String("player", fmt.Sprintf("bot-%d", os.Getpid()), "player id")
		champion  = flag.String("champion", "test-dummy", "champion id")
	)
	flag.Parse()

	cfg := config.Defaults()
	predictor := client.NewPredictor(protocol.PlayerID(*playerID), cfg.Prediction, cfg.Buffer)

	var link *client.NetworkLink
	link = client.NewNetworkLink(*serverURL, cfg.Link, protocol.PlayerID(*playerID), *champion, client.LinkCallbacks{
		OnGameStart: func(p protocol.GameStartPayload) {
			log.Printf("🎮 joined game %s as %s", p.GameID, p.YourSide)
		},
		OnFullState: func(p protocol.FullStateSnapshot) {
			predictor.HandleFullState(p, time.Now().UnixMilli())
		},
		OnStateUpdate: func(p protocol.StateUpdate) {
			predictor.HandleUpdate(p, time.Now().UnixMilli())
		},
		OnGameEnd: func(p protocol.GameEndPayload) {
			log.Printf("🏁 game over: %s wins after %.0fs", p.WinningSide, p.Duration)
		},
		OnServerError: func(e string) {
			log.Printf("❌ server error: %s", e)
		},
		OnDisconnect: func(err error) {
			if err != nil {
				log.Printf("🔌 link down: %v", err)
			} else {
				log.Println("🔌 link closed")
			}
		},
	})

	if err := link.Connect(); err != nil {
		log.Fatalf("❌ connect: %v", err)
	}
	log.Printf("🤖 bot %s connected to %s", *playerID, *serverURL)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	moveTicker := time.NewTicker(2 * time.Second)
	defer moveTicker.Stop()
	frameTicker := time.NewTicker(16 * time.Millisecond)
	defer frameTicker.Stop()
	statsTicker := time.NewTicker(10 * time.Second)
	defer statsTicker.Stop()

	last := time.Now()
	for {
		select {
		case <-stop:
			link.Disconnect()
			log.Println("👋 Goodbye")
			return

		case <-frameTicker.C:
			now := time.Now()
			predictor.Advance(now.Sub(last).Seconds())
			last = now

		case <-moveTicker.C:
			in, err := predictor.MakeInput(protocol.InputMove, protocol.MovePayload{
				X: rand.Float32() * 15000,
				Y: rand.Float32() * 15000,
			}, time.Now().UnixMilli())
			if err != nil {
				continue
			}
			if err := link.SendInput(in); err != nil {
				log.Printf("⚠️ send: %v", err)
			}

		case <-statsTicker.C:
			s := predictor.Stats(time.Now().UnixMilli())
			log.Printf("📊 pending=%d lastErr=%.1f snaps/s=%.2f buffered=%d rtt=%v",
				s.PendingInputs, s.LastError, s.SnapsPerSecond, s.BufferedSnapshots, link.Latency())
		}
	}
}
