package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/chamberlog/chamberlog/internal/config"
	"github.com/chamberlog/chamberlog/internal/server"
	"github.com/chamberlog/chamberlog/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "optional yaml config file; environment variables override it")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stdout)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	writer, err := storage.FromConfig(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize %s backend: %v", cfg.Backend, err)
	}

	srv := server.NewIngestServer(server.NewRouter(cfg, writer))

	go func() {
		log.Infof("Listening on %s (backend: %s)", cfg.HTTPAddr, cfg.Backend)
		if err := srv.Start(cfg.HTTPAddr); err != nil {
			log.Errorf("Server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Infof("Received signal: %v. Shutting down...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server shutdown error: %v", err)
	}

	log.Info("chamberlogd exited gracefully.")
}
