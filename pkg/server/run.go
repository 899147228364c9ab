package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Run serves HTTP and runs the session janitor until ctx is canceled, then
// shuts down gracefully and closes the server.
func Run(ctx context.Context, srv *Server) error {
	httpServer := &http.Server{
		Addr:        fmt.Sprintf(":%d", srv.Port),
		Handler:     srv.Handler,
		ReadTimeout: 30 * time.Second,
		// Pipeline runs and log streams are long-lived.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Int("port", srv.Port).Msg("🔥 Review Studio is ready")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		srv.Janitor.Start(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("🛑 Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if cerr := srv.Close(closeCtx); cerr != nil {
		log.Warn().Err(cerr).Msg("Close failed")
	}
	return err
}
