package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tayler-id/lab-agent-rag/internal/app"
	"github.com/tayler-id/lab-agent-rag/internal/config"
)

// Standalone ingestion worker: claims and processes jobs without
// serving HTTP. Run as many replicas as needed; the job lease keeps
// them from stepping on each other.
func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		<-c
		cancel()
	}()

	cfg := config.LoadConfig()
	application, err := app.NewApp(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer application.Close()

	application.Ingestor.Start(ctx, cfg.IngestWorkers)
	log.Info().Int("workers", cfg.IngestWorkers).Msg("ingestion workers running")

	<-ctx.Done()
	log.Info().Msg("shutting down")
}
