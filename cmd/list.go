package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/signalnine/llmsweep/internal/backend"
	"github.com/signalnine/llmsweep/internal/config"
	"github.com/spf13/cobra"
)

var flagModelsOnly bool

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List benchmark tasks and available models",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if !flagModelsOnly {
				tasks, err := loadTasks(cfg.TasksFile)
				if err != nil {
					return err
				}
				fmt.Println("Tasks:")
				for _, t := range tasks {
					fmt.Printf("  - %s [%s] (%d expected)\n", t.Name, t.Category, len(t.Expected))
				}
				fmt.Println()
			}

			client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout)
			models, err := client.ListModels(context.Background())
			if err != nil {
				if flagModelsOnly {
					return fmt.Errorf("listing models: %w", err)
				}
				log.Printf("warning: listing models from %s: %v", client.BaseURL(), err)
				return nil
			}
			fmt.Println("Available models:")
			for _, m := range models {
				fmt.Printf("  - %s\n", m)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&flagModelsOnly, "models", false, "only list models served by the backend")
	return cmd
}
