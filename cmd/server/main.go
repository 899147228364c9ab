// Review Studio server: HTTP API and MCP endpoint for 510(k) review sessions.
//
// It provides:
//   - Fuzzy search over clearances, adverse events, device identifiers and recalls
//   - Linked device views
//   - Per-session agent pipelines with a mana budget
//   - Document trimming and text extraction
//   - A run journal and live session logs
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/reviewstudio/studio/pkg/server"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	log.Info().Msg("🩺 Review Studio starting...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize server")
	}

	if err := server.Run(ctx, srv); err != nil {
		log.Error().Err(err).Msg("Server failed")
		os.Exit(1)
	}
}
