package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/settlement/internal/modules/export"
	"github.com/aristath/settlement/internal/server"
	"github.com/aristath/settlement/internal/services/settlement"
	"github.com/aristath/settlement/internal/work"
	"github.com/spf13/cobra"
)

// jobRetention is how long finished runs stay pollable before only the ledger knows them
const jobRetention = 24 * time.Hour

// serveCmd serves settlement runs over HTTP
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve settlement runs over HTTP",
	Long: `Starts the HTTP API. POST a campaign file to /api/runs to queue a run, then poll
/api/runs/{id}. Runs execute one at a time; each writes its export files and, when
RESULTS_DB is set, is recorded in the ledger.`,
	Args: cobra.NoArgs,
	RunE: serve,
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, closer, err := newLogger(cfg, "")
	if err != nil {
		return err
	}
	defer closer.Close()

	log.Info().Msg("Starting settlement server")

	svc, ledger, cleanup, err := buildService(cfg, "serve", log)
	if err != nil {
		return err
	}
	defer cleanup()
	svc.SetWriter(export.NewWriter(export.Options{Dir: cfg.OutputDir}, log))

	processor := work.NewProcessor[*settlement.Outcome](work.WorkTimeout, log)

	srv := server.New(server.Config{
		Log:            log,
		Port:           cfg.Port,
		DevMode:        cfg.DevMode,
		AllowedOrigins: cfg.AllowedOrigins,
		Runner:         svc,
		Processor:      processor,
		Ledger:         ledger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := processor.Prune(jobRetention); n > 0 {
					log.Debug().Int("jobs", n).Msg("Pruned finished runs")
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			processor.Stop()
			return err
		}
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	processor.Stop()

	log.Info().Msg("Server stopped")
	return nil
}
