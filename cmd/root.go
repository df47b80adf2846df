package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "llmsweep",
		Short: "Parameter-sweep benchmark harness for local LLMs",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "llmsweep.yaml", "config file path")
	root.AddCommand(newRunCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newHistoryCmd())
	return root
}
