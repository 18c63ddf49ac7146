package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/aristath/settlement/internal/config"
	"github.com/aristath/settlement/internal/database"
	"github.com/aristath/settlement/internal/diagnostics"
	"github.com/aristath/settlement/internal/domain"
	"github.com/aristath/settlement/internal/modules/export"
	"github.com/aristath/settlement/internal/modules/extraction"
	"github.com/aristath/settlement/internal/modules/report"
	"github.com/aristath/settlement/internal/services/settlement"
	"github.com/aristath/settlement/internal/work"
	"github.com/aristath/settlement/pkg/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	outputDir string
	noExport  bool
	noRunLog  bool
)

// runCmd settles one campaign
var runCmd = &cobra.Command{
	Use:   "run <campaign.yaml>",
	Short: "Settle a campaign and export the price files",
	Long: `Loads the campaign file, reads the source databases, computes the certification
bonus fund and the final prices, and writes the Perceco price file together with the
audit, exceptions, unmapped caliber, weekly and reconciliation files.

Ctrl-C aborts the run; nothing is exported or recorded for an aborted run.`,
	Args: cobra.ExactArgs(1),
	RunE: runSettlement,
}

func init() {
	runCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (defaults to OUTPUT_DIR)")
	runCmd.Flags().BoolVar(&noExport, "no-export", false, "compute and report without writing files")
	runCmd.Flags().BoolVar(&noRunLog, "no-run-log", false, "do not write a run log file")
}

func runSettlement(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}

	start := time.Now()
	runLog := ""
	if !noRunLog {
		runLog = logger.RunLogPath(cfg.OutputDir, start)
	}
	log, closer, err := newLogger(cfg, runLog)
	if err != nil {
		return err
	}
	defer closer.Close()

	campaign, err := config.LoadCampaignFile(args[0])
	if err != nil {
		return err
	}
	params, err := campaign.Parameters()
	if err != nil {
		return fmt.Errorf("invalid campaign file %s: %w", args[0], err)
	}

	runID := uuid.New().String()
	log = log.With().Str("run_id", runID).Logger()

	svc, _, cleanup, err := buildService(cfg, runID, log)
	if err != nil {
		return err
	}
	defer cleanup()
	if !noExport {
		svc.SetWriter(export.NewWriter(campaign.ExportOptions(cfg.OutputDir), log))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcome := <-work.Submit(ctx, func(ctx context.Context) (*settlement.Outcome, error) {
		return svc.Run(ctx, runID, *params)
	})
	if outcome.Err != nil {
		if ctx.Err() != nil {
			log.Warn().Msg("Settlement run aborted")
		}
		describeFailure(cmd, outcome.Err)
		return outcome.Err
	}

	out := cmd.OutOrStdout()
	if err := report.Render(out, outcome.Value.Report()); err != nil {
		return err
	}
	printFiles(cmd, outcome.Value.Files)
	if len(outcome.Value.Unmapped) > 0 {
		fmt.Fprintf(out, "\n%d caliber correspondences without a usable label (see the unmapped calibers file)\n",
			len(outcome.Value.Unmapped))
	}
	return nil
}

// buildService opens the sources, the optional ledger and diagnostics file, and wires
// the settlement service over them. The ledger is nil when RESULTS_DB is unset.
// cleanup closes everything that was opened.
func buildService(cfg *config.Config, runID string, log zerolog.Logger) (*settlement.Service, *export.LedgerWriter, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn().Err(err).Msg("Failed to close resource")
			}
		}
	}

	sources, err := extraction.Open(extraction.Paths{
		Fruta:   cfg.FrutaDB,
		Calidad: cfg.CalidadDB,
		EEPPL:   cfg.EEPPLDB,
	}, log)
	if err != nil {
		return nil, nil, nil, err
	}
	closers = append(closers, sources.Close)

	sinks := diagnostics.Multi{diagnostics.NewLogSink(log)}
	if cfg.DiagnosticsFile != "" {
		fileSink, err := diagnostics.NewFileSink(cfg.DiagnosticsFile, runID, log)
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		closers = append(closers, fileSink.Close)
		sinks = append(sinks, fileSink)
	}

	svc := settlement.NewService(sources, sinks, log)

	var ledger *export.LedgerWriter
	if cfg.ResultsDB != "" {
		ledgerDB, err := database.New(database.Config{
			Path:    cfg.ResultsDB,
			Profile: database.ProfileLedger,
			Name:    "ledger",
		})
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		closers = append(closers, ledgerDB.Close)
		if err := ledgerDB.Migrate(); err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		ledger = export.NewLedgerWriter(ledgerDB.Conn(), log)
		svc.SetLedger(ledger)
	}

	return svc, ledger, cleanup, nil
}

func printFiles(cmd *cobra.Command, files export.Files) {
	if len(files) == 0 {
		return
	}
	kinds := make([]string, 0, len(files))
	for kind := range files {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\nFiles:")
	for _, kind := range kinds {
		fmt.Fprintf(out, "  %-16s %s\n", kind, files[kind])
	}
}

// describeFailure prints the rule and offending keys of settlement failures.
func describeFailure(cmd *cobra.Command, err error) {
	errOut := cmd.ErrOrStderr()

	var validation *domain.ValidationError
	var mapping *domain.MappingError
	switch {
	case errors.As(err, &validation):
		fmt.Fprintf(errOut, "rule %s failed: %s\n", validation.Rule, validation.Message)
		for _, key := range validation.Keys {
			fmt.Fprintf(errOut, "  %s\n", key)
		}
	case errors.As(err, &mapping):
		fmt.Fprintf(errOut, "caliber mapping failed for %d codes:\n", len(mapping.Codes))
		for _, code := range mapping.Codes {
			fmt.Fprintf(errOut, "  %s\n", code)
		}
	}
}
