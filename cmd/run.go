package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/signalnine/llmsweep/internal/backend"
	"github.com/signalnine/llmsweep/internal/catalog"
	"github.com/signalnine/llmsweep/internal/config"
	"github.com/signalnine/llmsweep/internal/docker"
	"github.com/signalnine/llmsweep/internal/report"
	"github.com/signalnine/llmsweep/internal/result"
	"github.com/signalnine/llmsweep/internal/store"
	"github.com/signalnine/llmsweep/internal/sweep"
	"github.com/spf13/cobra"
)

var (
	flagModel        string
	flagQuantization string
	flagTemperatures []float64
	flagMaxTokens    []int
	flagContexts     []int
	flagTasks        []string
	flagCategory     string
	flagQuick        bool
	flagParallel     int
	flagBaseURL      string
	flagOutput       string
	flagDocker       bool
	flagNoStore      bool
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sweep generation parameters over the task catalog",
		RunE:  runSweep,
	}
	cmd.Flags().StringVarP(&flagModel, "model", "m", "", "model name")
	cmd.Flags().StringVarP(&flagQuantization, "quantization", "q", "", "quantization label for the results")
	cmd.Flags().Float64SliceVarP(&flagTemperatures, "temperatures", "t", nil, "temperature values to test")
	cmd.Flags().IntSliceVar(&flagMaxTokens, "max-tokens", nil, "max token values to test")
	cmd.Flags().IntSliceVarP(&flagContexts, "contexts", "c", nil, "context window sizes to test")
	cmd.Flags().StringSliceVar(&flagTasks, "tasks", nil, "run only these tasks")
	cmd.Flags().StringVar(&flagCategory, "category", "", "filter by category (prefix/* matches a prefix)")
	cmd.Flags().BoolVar(&flagQuick, "quick", false, "fewer parameter combinations")
	cmd.Flags().IntVar(&flagParallel, "parallel", 0, "max concurrent requests")
	cmd.Flags().StringVar(&flagBaseURL, "base-url", "", "generation service base URL")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "results directory")
	cmd.Flags().StringVar(&flagFormat, "format", "table", "summary format (table, markdown, json)")
	cmd.Flags().BoolVar(&flagDocker, "docker", false, "start a backend container for the run")
	cmd.Flags().BoolVar(&flagNoStore, "no-store", false, "do not record the run in the results database")
	return cmd
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}
	all, err := loadTasks(cfg.TasksFile)
	if err != nil {
		return err
	}
	tasks, err := selectTasks(all, flagTasks, flagCategory)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout)
	if cfg.Backend.Docker.Enabled {
		fmt.Printf("Starting backend container (%s)...\n", cfg.Backend.Docker.Image)
		srv, err := docker.Start(ctx, &docker.StartOpts{
			Image:     cfg.Backend.Docker.Image,
			ModelsDir: cfg.Backend.Docker.ModelsDir,
			Port:      portOf(cfg.Backend.BaseURL),
			Ready:     client.Ping,
		})
		if err != nil {
			return fmt.Errorf("starting backend container: %w", err)
		}
		defer srv.Stop()
	}

	fmt.Printf("Testing model: %s\n", cfg.Sweep.Model)
	if models, err := client.ListModels(ctx); err != nil {
		log.Printf("warning: listing models: %v", err)
	} else {
		fmt.Printf("Available models: %s\n", strings.Join(models, ", "))
	}

	runDir, results, info, err := sweepAndSave(ctx, cfg, tasks, client, client.BaseURL(), os.Stdout)
	if err != nil {
		return err
	}
	fmt.Printf("\nResults saved to: %s\n", runDir)

	if !flagNoStore {
		if err := storeRun(ctx, cfg.Results.DB, info, results); err != nil {
			log.Printf("warning: recording run in %s: %v", cfg.Results.DB, err)
		}
	}

	fmt.Println()
	return report.Write(report.Summarize(results), flagFormat, os.Stdout)
}

// sweepAndSave runs the sweep and writes its run directory. The directory,
// and the latest link, only appear once every grid point has a result.
func sweepAndSave(ctx context.Context, cfg *config.Config, tasks []catalog.Task, gen sweep.Generator, baseURL string, progress io.Writer) (string, []result.Result, *result.RunInfo, error) {
	params := sweep.Params{
		Temperatures: cfg.Sweep.Temperatures,
		MaxTokens:    cfg.Sweep.MaxTokens,
		Contexts:     cfg.Sweep.Contexts,
	}
	info := &result.RunInfo{
		ID:           result.NewRunID(),
		Model:        cfg.Sweep.Model,
		Quantization: cfg.Sweep.Quantization,
		BaseURL:      baseURL,
		Temperatures: params.Temperatures,
		MaxTokens:    params.MaxTokens,
		Contexts:     params.Contexts,
		Tasks:        catalog.Names(tasks),
		TotalRuns:    sweep.TotalRuns(tasks, params),
		StartedAt:    time.Now(),
	}

	results, err := sweep.Run(ctx, &sweep.Options{
		Model:        cfg.Sweep.Model,
		Quantization: cfg.Sweep.Quantization,
		Params:       params,
		Tasks:        tasks,
		Backend:      gen,
		Parallel:     cfg.Sweep.Parallel,
		Progress:     progress,
	})
	if err != nil {
		return "", nil, nil, fmt.Errorf("running sweep: %w", err)
	}
	info.FinishedAt = time.Now()

	runDir, err := result.CreateRunDir(cfg.Results.Dir, info.ID)
	if err != nil {
		return "", nil, nil, err
	}
	if err := saveRun(runDir, info, results); err != nil {
		return "", nil, nil, err
	}
	return runDir, results, info, nil
}

// applyRunFlags layers the quick preset and explicitly set flags over cfg.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	s := &cfg.Sweep
	if flagQuick {
		s.Temperatures = []float64{0.0, 0.7}
		s.MaxTokens = []int{256}
		s.Contexts = []int{2048}
	}
	if f.Changed("model") {
		s.Model = flagModel
	}
	if f.Changed("quantization") {
		s.Quantization = flagQuantization
	}
	if f.Changed("temperatures") {
		s.Temperatures = flagTemperatures
	}
	if f.Changed("max-tokens") {
		s.MaxTokens = flagMaxTokens
	}
	if f.Changed("contexts") {
		s.Contexts = flagContexts
	}
	if f.Changed("parallel") {
		s.Parallel = flagParallel
	}
	if f.Changed("base-url") {
		cfg.Backend.BaseURL = flagBaseURL
	}
	if f.Changed("output") {
		applyOutputDir(cfg, flagOutput)
	}
	if f.Changed("docker") {
		cfg.Backend.Docker.Enabled = flagDocker
	}
	if err := report.CheckFormat(flagFormat); err != nil {
		return err
	}
	return config.Validate(cfg)
}

// applyOutputDir moves the run directories and the default database under dir.
func applyOutputDir(cfg *config.Config, dir string) {
	cfg.Results.Dir = dir
	cfg.Results.DB = filepath.Join(dir, "llmsweep.db")
}

func loadTasks(path string) ([]catalog.Task, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(path)
}

func selectTasks(tasks []catalog.Task, names []string, category string) ([]catalog.Task, error) {
	selected := catalog.Filter(tasks, names, category)
	if len(selected) == 0 {
		return nil, fmt.Errorf("no matching tasks found, available: %s", strings.Join(catalog.Names(tasks), ", "))
	}
	return selected, nil
}

func saveRun(runDir string, info *result.RunInfo, results []result.Result) error {
	if err := result.WriteRunInfo(runDir, info); err != nil {
		return err
	}
	if err := result.WriteResults(runDir, results); err != nil {
		return err
	}
	return result.WriteCSV(runDir, results)
}

func storeRun(ctx context.Context, path string, info *result.RunInfo, results []result.Result) error {
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()
	return st.SaveRun(ctx, info, results)
}

// portOf returns the port of a base URL, or the backend default.
func portOf(baseURL string) int {
	u, err := url.Parse(baseURL)
	if err != nil {
		return docker.DefaultPort
	}
	p, err := strconv.Atoi(u.Port())
	if err != nil || p <= 0 {
		return docker.DefaultPort
	}
	return p
}
