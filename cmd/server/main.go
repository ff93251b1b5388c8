package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cursor-telemetry/backend/internal/config"
	"github.com/cursor-telemetry/backend/internal/ingest"
	"github.com/cursor-telemetry/backend/internal/mock"
	"github.com/cursor-telemetry/backend/internal/pipeline"
	"github.com/cursor-telemetry/backend/internal/session"
	"github.com/cursor-telemetry/backend/internal/store"
	"github.com/cursor-telemetry/backend/internal/ws"
)

func main() {
	mockMode := flag.Bool("mock", false, "Generate synthetic activity events")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	dbPath := flag.String("db", "", "Override session database path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Storage.Path = *dbPath
	}

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("Failed to open session store: %v", err)
	}

	pipe := pipeline.New(pipeline.Config{
		MaxBufferSize:            cfg.Pipeline.MaxBufferSize,
		BatchSize:                cfg.Pipeline.BatchSize,
		DedupWindowMs:            cfg.Pipeline.DedupWindowMs,
		SessionTimeoutMs:         cfg.Pipeline.SessionTimeoutMs,
		ContextSwitchThresholdMs: cfg.Pipeline.ContextSwitchThresholdMs,
		IdleFlush:                cfg.Pipeline.IdleFlush,
	})

	broadcaster := ws.NewBroadcaster(st, cfg.Broadcast.Throttle, cfg.Broadcast.SnapshotSessions)
	pipe.RegisterSessionHandler(func(s session.Session) {
		if err := st.SaveSession(s); err != nil {
			log.Printf("persist session %s: %v", s.ID, err)
		}
	})
	pipe.RegisterSessionHandler(broadcaster.QueueSession)

	server := ws.NewServer(pipe, st, broadcaster, ingest.NewEnricher(), cfg.Server.AllowedOrigins, cfg.Server.AuthToken)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *mockMode {
		log.Println("Starting in mock mode (synthetic activity)")
		mock.NewGenerator(pipe).Start(ctx)
	}

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
		// Finalize buffered events into sessions before exit.
		pipe.Close()
		st.Close()
		os.Exit(0)
	}()

	if err := ws.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
