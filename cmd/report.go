package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/signalnine/llmsweep/internal/config"
	"github.com/signalnine/llmsweep/internal/report"
	"github.com/signalnine/llmsweep/internal/store"
	"github.com/spf13/cobra"
)

var (
	flagFormat string
	flagRunID  string
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [run-dir]",
		Short: "Generate summary from stored results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("output") {
				applyOutputDir(cfg, flagOutput)
			}
			if flagRunID != "" {
				return reportFromStore(cfg.Results.DB, flagRunID)
			}
			runDir := filepath.Join(cfg.Results.Dir, "latest")
			if len(args) > 0 {
				runDir = args[0]
			}
			resolved, err := filepath.EvalSymlinks(runDir)
			if err != nil {
				return fmt.Errorf("resolving run dir: %w", err)
			}
			return report.Generate(resolved, flagFormat, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json)")
	cmd.Flags().StringVar(&flagRunID, "run", "", "summarize a run from the results database by id")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "results directory used by run --output")
	return cmd
}

func reportFromStore(dbPath, runID string) error {
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("opening results database: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()
	results, err := st.Results(context.Background(), runID)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("no results stored for run %s", runID)
	}
	return report.Write(report.Summarize(results), flagFormat, os.Stdout)
}
