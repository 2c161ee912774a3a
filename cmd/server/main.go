package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wormup/sync/internal/api"
	"wormup/sync/internal/config"
	"wormup/sync/internal/playerws"
	"wormup/sync/internal/relay"
)

func main() {
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	cfg := config.Load()

	mgr := relay.NewManager()

	mux := http.NewServeMux()
	mux.Handle("/", api.NewRouter(api.NewHandlers(cfg, mgr)))
	mux.Handle("/metrics", promhttp.Handler())

	wss := playerws.NewServer(cfg, mgr)
	mux.HandleFunc("/ws", wss.HandlePlayerWS)

	// Background tasks owned by main: stale-session sweeper and periodic
	// stats log, both cancelled on shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	sweeper := relay.NewSweeper(mgr, cfg.Sync.SweepInterval, cfg.Sync.StaleAfter)
	go sweeper.Run(ctx)
	go logStats(ctx, mgr, cfg.Sync.StatsLogInterval)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Printf("shutdown signal received; stopping server...")
		cancel()
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = srv.Shutdown(sctx)
	}()

	log.Printf("sync server starting on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Println("server error:", err)
		os.Exit(1)
	}
}

func logStats(ctx context.Context, mgr *relay.Manager, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			st := mgr.Stats()
			log.Printf("stats: sessions=%d rooms=%d messages=%d skin=%d hat=%d uptime=%dm",
				st.ActiveConnections, st.ActiveRooms, st.TotalMessages,
				st.SkinUpdates, st.HatUpdates, st.Uptime/60000)
		}
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
