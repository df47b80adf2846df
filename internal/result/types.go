package result

import (
	"time"
	"unicode/utf8"
)

// MaxPreviewRunes bounds the response text retained per result.
const MaxPreviewRunes = 500

type Result struct {
	Task            string  `json:"task_name"`
	Category        string  `json:"category"`
	Model           string  `json:"model"`
	Quantization    string  `json:"quantization"`
	Temperature     float64 `json:"temperature"`
	MaxTokens       int     `json:"max_tokens"`
	NumCtx          int     `json:"num_ctx"`
	Response        string  `json:"response"`
	TimeSeconds     float64 `json:"time_seconds"`
	TokensGenerated int     `json:"tokens_generated"`
	TokensPerSecond float64 `json:"tokens_per_second"`
	ExpectedFound   int     `json:"expected_found"`
	ExpectedTotal   int     `json:"expected_total"`
	SuccessRate     float64 `json:"success_rate"`
	Error           string  `json:"error,omitempty"`
}

// RunInfo describes one sweep invocation and is stored next to its results.
type RunInfo struct {
	ID           string    `json:"id"`
	Model        string    `json:"model"`
	Quantization string    `json:"quantization"`
	BaseURL      string    `json:"base_url"`
	Temperatures []float64 `json:"temperatures"`
	MaxTokens    []int     `json:"max_tokens"`
	Contexts     []int     `json:"contexts"`
	Tasks        []string  `json:"tasks"`
	TotalRuns    int       `json:"total_runs"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Preview truncates s to at most n runes.
func Preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
