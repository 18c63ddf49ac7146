package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/aristath/settlement/internal/checks"
	"github.com/aristath/settlement/internal/modules/report"
	"github.com/spf13/cobra"
)

// checksCmd runs the two-grower campaign
var checksCmd = &cobra.Command{
	Use:   "checks",
	Short: "Settle the built-in two-grower campaign and verify the result",
	Long: `Runs the whole pipeline on a two-grower campaign whose prices are known by hand
(coefficient 4.95, AAA I at 4.95, AAA II at 2.475) and reports every check. Needs no
databases; exits non-zero when a check fails.`,
	Args: cobra.NoArgs,
	RunE: runChecks,
}

func runChecks(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, closer, err := newLogger(cfg, "")
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := checks.Run(ctx, nil, log)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if err := report.Render(out, result.Outcome.Report()); err != nil {
		return err
	}
	fmt.Fprintln(out)
	for _, c := range result.Checks {
		status := "ok"
		if !c.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(out, "%-4s %-20s %s\n", status, c.Name, c.Detail)
	}

	if failed := result.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d checks failed", len(failed), len(result.Checks))
	}
	return nil
}
