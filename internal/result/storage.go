package result

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ResultsFile = "results.json"
	CSVFile     = "results.csv"
	RunFile     = "run.json"

	csvPreviewRunes = 100
)

func NewRunID() string {
	return uuid.NewString()
}

// CreateRunDir creates runs/<UTC time>-<short run id> under baseDir and
// points baseDir/latest at it. An existing directory is an error so runs
// never overwrite each other.
func CreateRunDir(baseDir, runID string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	name := time.Now().UTC().Format("2006-01-02T15-04-05") + "-" + short
	runDir, err := filepath.Abs(filepath.Join(baseDir, "runs", name))
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(runDir), 0o755); err != nil {
		return "", fmt.Errorf("creating runs dir: %w", err)
	}
	if err := os.Mkdir(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

func WriteRunInfo(runDir string, info *RunInfo) error {
	return writeJSON(filepath.Join(runDir, RunFile), info)
}

func ReadRunInfo(runDir string) (*RunInfo, error) {
	data, err := os.ReadFile(filepath.Join(runDir, RunFile))
	if err != nil {
		return nil, fmt.Errorf("reading run info: %w", err)
	}
	var info RunInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parsing run info: %w", err)
	}
	return &info, nil
}

func WriteResults(runDir string, results []Result) error {
	if results == nil {
		results = []Result{}
	}
	return writeJSON(filepath.Join(runDir, ResultsFile), results)
}

func ReadResults(runDir string) ([]Result, error) {
	data, err := os.ReadFile(filepath.Join(runDir, ResultsFile))
	if err != nil {
		return nil, fmt.Errorf("reading results: %w", err)
	}
	var results []Result
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("parsing results: %w", err)
	}
	return results, nil
}

var csvHeader = []string{
	"task", "category", "model", "quantization", "temperature",
	"max_tokens", "num_ctx", "time_s", "tokens", "tokens_per_s",
	"score", "score_pct", "response_preview",
}

func WriteCSV(runDir string, results []Result) error {
	f, err := os.Create(filepath.Join(runDir, CSVFile))
	if err != nil {
		return fmt.Errorf("creating csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, r := range results {
		if err := w.Write(csvRow(r)); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return f.Close()
}

func csvRow(r Result) []string {
	preview := strings.ReplaceAll(Preview(r.Response, csvPreviewRunes), "\n", " ")
	return []string{
		r.Task,
		r.Category,
		r.Model,
		r.Quantization,
		strconv.FormatFloat(r.Temperature, 'f', -1, 64),
		strconv.Itoa(r.MaxTokens),
		strconv.Itoa(r.NumCtx),
		strconv.FormatFloat(r.TimeSeconds, 'f', 2, 64),
		strconv.Itoa(r.TokensGenerated),
		strconv.FormatFloat(r.TokensPerSecond, 'f', 1, 64),
		fmt.Sprintf("%d/%d", r.ExpectedFound, r.ExpectedTotal),
		strconv.FormatFloat(r.SuccessRate, 'f', 1, 64),
		preview,
	}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, data, 0o644)
}
