package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/signalnine/llmsweep/internal/config"
	"github.com/signalnine/llmsweep/internal/store"
	"github.com/spf13/cobra"
)

var flagLimit int

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List runs recorded in the results database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("output") {
				applyOutputDir(cfg, flagOutput)
			}
			if _, err := os.Stat(cfg.Results.DB); err != nil {
				return fmt.Errorf("no run history at %s: %w", cfg.Results.DB, err)
			}
			st, err := store.Open(cfg.Results.DB)
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.History(context.Background(), flagLimit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTARTED\tMODEL\tQUANT\tRUNS\tFAILED\tAVG SCORE\tAVG T/S")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%.1f%%\t%.1f\n",
					r.ID, r.StartedAt.Local().Format("2006-01-02 15:04"), r.Model, r.Quantization,
					r.Runs, r.Failures, r.AvgScore, r.AvgTPS)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&flagLimit, "limit", 20, "maximum runs to show (0 for all)")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "results directory used by run --output")
	return cmd
}
