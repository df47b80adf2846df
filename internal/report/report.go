package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/signalnine/llmsweep/internal/result"
)

var headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))

// Generate reads the results stored in runDir and writes their summary.
func Generate(runDir, format string, w io.Writer) error {
	results, err := result.ReadResults(runDir)
	if err != nil {
		return err
	}
	return Write(Summarize(results), format, w)
}

// CheckFormat reports whether Write accepts format.
func CheckFormat(format string) error {
	switch format {
	case "table", "", "markdown", "json":
		return nil
	}
	return fmt.Errorf("unknown format %q (want table, markdown or json)", format)
}

func Write(s *Summary, format string, w io.Writer) error {
	if err := CheckFormat(format); err != nil {
		return err
	}
	switch format {
	case "markdown":
		return writeMarkdown(s, w)
	case "json":
		return writeJSON(s, w)
	default:
		return writeTable(s, w)
	}
}

func heading(w io.Writer, title string) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(w, "\n%s\n%s\n%s\n", rule, headingStyle.Render(title), rule)
}

func writeTable(s *Summary, w io.Writer) error {
	heading(w, "SUMMARY")
	fmt.Fprintf(w, "Runs: %d, Failures: %d, Avg Score: %.1f%%\n\n", s.Runs, s.Failures, s.AvgScore)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tRUNS\tAVG SCORE\tAVG SPEED")
	for _, c := range s.Categories {
		fmt.Fprintf(tw, "%s\t%d\t%.1f%%\t%.1f t/s\n", c.Category, c.Runs, c.AvgScore, c.AvgTokensPerSec)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	heading(w, "BEST PARAMETERS BY CATEGORY")
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tTASK\tTEMP\tMAX TOK\tCTX\tSCORE\tSPEED")
	for _, b := range s.Best {
		r := b.Result
		fmt.Fprintf(tw, "%s\t%s\t%g\t%d\t%d\t%.1f%%\t%.1f t/s\n",
			b.Category, r.Task, r.Temperature, r.MaxTokens, r.NumCtx, r.SuccessRate, r.TokensPerSecond)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	heading(w, "TEMPERATURE ANALYSIS")
	for _, t := range s.Temperatures {
		fmt.Fprintf(w, "  temp=%g: avg_score=%.1f%% (%d runs)\n", t.Temperature, t.AvgScore, t.Runs)
	}
	return nil
}

func writeMarkdown(s *Summary, w io.Writer) error {
	fmt.Fprintf(w, "**Runs:** %d, **Failures:** %d, **Avg Score:** %.1f%%\n\n", s.Runs, s.Failures, s.AvgScore)

	fmt.Fprintln(w, "## Categories")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Category | Runs | Avg Score | Avg Speed |")
	fmt.Fprintln(w, "|---|---|---|---|")
	for _, c := range s.Categories {
		fmt.Fprintf(w, "| %s | %d | %.1f%% | %.1f t/s |\n", c.Category, c.Runs, c.AvgScore, c.AvgTokensPerSec)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "## Best parameters by category")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Category | Task | Temp | Max Tokens | Context | Score | Speed |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|")
	for _, b := range s.Best {
		r := b.Result
		fmt.Fprintf(w, "| %s | %s | %g | %d | %d | %.1f%% | %.1f t/s |\n",
			b.Category, r.Task, r.Temperature, r.MaxTokens, r.NumCtx, r.SuccessRate, r.TokensPerSecond)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "## Temperature analysis")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Temperature | Runs | Avg Score |")
	fmt.Fprintln(w, "|---|---|---|")
	for _, t := range s.Temperatures {
		fmt.Fprintf(w, "| %g | %d | %.1f%% |\n", t.Temperature, t.Runs, t.AvgScore)
	}
	return nil
}

func writeJSON(s *Summary, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
