package report

import (
	"sort"

	"github.com/signalnine/llmsweep/internal/result"
)

type CategoryStats struct {
	Category        string  `json:"category"`
	Runs            int     `json:"runs"`
	AvgScore        float64 `json:"avg_score"`
	AvgTokensPerSec float64 `json:"avg_tokens_per_sec"`
}

type BestConfig struct {
	Category string        `json:"category"`
	Result   result.Result `json:"result"`
}

type TemperatureStats struct {
	Temperature float64 `json:"temperature"`
	Runs        int     `json:"runs"`
	AvgScore    float64 `json:"avg_score"`
}

type Summary struct {
	Runs         int                `json:"runs"`
	Failures     int                `json:"failures"`
	AvgScore     float64            `json:"avg_score"`
	Categories   []CategoryStats    `json:"categories"`
	Best         []BestConfig       `json:"best"`
	Temperatures []TemperatureStats `json:"temperatures"`
}

// Summarize groups results by category and by temperature. Categories keep
// the order in which they first appear; temperatures are sorted ascending.
// The best result of a category maximizes success rate, then tokens per
// second; remaining ties keep the earliest result.
func Summarize(results []result.Result) *Summary {
	type accum struct {
		count int
		score float64
		tps   float64
		best  result.Result
	}
	var order []string
	byCat := map[string]*accum{}
	byTemp := map[float64]*accum{}

	s := &Summary{Runs: len(results)}
	var total float64
	for _, r := range results {
		total += r.SuccessRate
		if r.Error != "" {
			s.Failures++
		}

		a, ok := byCat[r.Category]
		if !ok {
			a = &accum{best: r}
			byCat[r.Category] = a
			order = append(order, r.Category)
		} else if better(r, a.best) {
			a.best = r
		}
		a.count++
		a.score += r.SuccessRate
		a.tps += r.TokensPerSecond

		ta, ok := byTemp[r.Temperature]
		if !ok {
			ta = &accum{}
			byTemp[r.Temperature] = ta
		}
		ta.count++
		ta.score += r.SuccessRate
	}
	if len(results) > 0 {
		s.AvgScore = total / float64(len(results))
	}

	s.Categories = make([]CategoryStats, 0, len(order))
	s.Best = make([]BestConfig, 0, len(order))
	for _, cat := range order {
		a := byCat[cat]
		s.Categories = append(s.Categories, CategoryStats{
			Category:        cat,
			Runs:            a.count,
			AvgScore:        a.score / float64(a.count),
			AvgTokensPerSec: a.tps / float64(a.count),
		})
		s.Best = append(s.Best, BestConfig{Category: cat, Result: a.best})
	}

	temps := make([]float64, 0, len(byTemp))
	for t := range byTemp {
		temps = append(temps, t)
	}
	sort.Float64s(temps)
	s.Temperatures = make([]TemperatureStats, 0, len(temps))
	for _, t := range temps {
		a := byTemp[t]
		s.Temperatures = append(s.Temperatures, TemperatureStats{
			Temperature: t,
			Runs:        a.count,
			AvgScore:    a.score / float64(a.count),
		})
	}
	return s
}

func better(r, best result.Result) bool {
	if r.SuccessRate != best.SuccessRate {
		return r.SuccessRate > best.SuccessRate
	}
	return r.TokensPerSecond > best.TokensPerSecond
}
