package sweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/signalnine/llmsweep/internal/backend"
	"github.com/signalnine/llmsweep/internal/catalog"
	"github.com/signalnine/llmsweep/internal/result"
	"github.com/signalnine/llmsweep/internal/score"
)

var (
	ErrNoTasks       = errors.New("no tasks to run")
	ErrInvalidParams = errors.New("invalid sweep parameters")
)

// Generator is the backend surface the engine needs. Implementations must
// return a zero-metric Generation alongside any error.
type Generator interface {
	Generate(ctx context.Context, req backend.GenerateRequest) (backend.Generation, error)
}

// Params are the swept parameter lists, iterated in the order given.
type Params struct {
	Temperatures []float64
	MaxTokens    []int
	Contexts     []int
}

func (p Params) Validate() error {
	switch {
	case len(p.Temperatures) == 0:
		return fmt.Errorf("%w: no temperatures", ErrInvalidParams)
	case len(p.MaxTokens) == 0:
		return fmt.Errorf("%w: no max token values", ErrInvalidParams)
	case len(p.Contexts) == 0:
		return fmt.Errorf("%w: no context sizes", ErrInvalidParams)
	}
	for _, t := range p.Temperatures {
		if t < 0 {
			return fmt.Errorf("%w: temperature %g is negative", ErrInvalidParams, t)
		}
	}
	for _, m := range p.MaxTokens {
		if m <= 0 {
			return fmt.Errorf("%w: max tokens %d must be positive", ErrInvalidParams, m)
		}
	}
	for _, c := range p.Contexts {
		if c <= 0 {
			return fmt.Errorf("%w: context size %d must be positive", ErrInvalidParams, c)
		}
	}
	return nil
}

type Point struct {
	Index       int
	Task        catalog.Task
	Temperature float64
	MaxTokens   int
	NumCtx      int
}

func TotalRuns(tasks []catalog.Task, p Params) int {
	return len(tasks) * len(p.Temperatures) * len(p.MaxTokens) * len(p.Contexts)
}

// Expand returns the grid in task → temperature → max tokens → context order.
func Expand(tasks []catalog.Task, p Params) []Point {
	points := make([]Point, 0, TotalRuns(tasks, p))
	for _, task := range tasks {
		for _, temp := range p.Temperatures {
			for _, maxTok := range p.MaxTokens {
				for _, numCtx := range p.Contexts {
					points = append(points, Point{
						Index:       len(points),
						Task:        task,
						Temperature: temp,
						MaxTokens:   maxTok,
						NumCtx:      numCtx,
					})
				}
			}
		}
	}
	return points
}

type Options struct {
	Model        string
	Quantization string
	Params       Params
	Tasks        []catalog.Task
	Backend      Generator
	// Parallel > 1 runs points on a bounded worker pool; otherwise points
	// run one at a time.
	Parallel int
	Progress io.Writer
}

// Run executes every grid point once and returns one result per point, in
// grid order. Backend failures become zero-metric results; only an invalid
// request or cancellation of ctx ends the sweep early.
func Run(ctx context.Context, opts *Options) ([]result.Result, error) {
	if len(opts.Tasks) == 0 {
		return nil, ErrNoTasks
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}
	if opts.Backend == nil {
		return nil, fmt.Errorf("no backend configured")
	}

	s := &sweeper{opts: opts, out: opts.Progress}
	if s.out == nil {
		s.out = io.Discard
	}
	points := Expand(opts.Tasks, opts.Params)
	s.total = len(points)
	s.banner()

	results := make([]result.Result, len(points))
	if opts.Parallel <= 1 {
		for _, pt := range points {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			s.printf("[%d/%d] %s\n", pt.Index+1, s.total, describe(pt))
			r, line := s.runPoint(ctx, pt)
			s.printf("%s", line)
			results[pt.Index] = r
		}
	} else {
		jobs := make([]Job, len(points))
		for i, pt := range points {
			jobs[i] = func() error {
				r, line := s.runPoint(ctx, pt)
				results[pt.Index] = r
				s.printf("[%d/%d] %s\n%s", pt.Index+1, s.total, describe(pt), line)
				return nil
			}
		}
		RunPool(ctx, opts.Parallel, jobs)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

type sweeper struct {
	opts  *Options
	total int

	mu  sync.Mutex
	out io.Writer
}

func (s *sweeper) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

func (s *sweeper) banner() {
	rule := strings.Repeat("=", 60)
	s.printf("\n%s\nBENCHMARK: %s (%s)\n", rule, s.opts.Model, s.opts.Quantization)
	s.printf("Tasks: %d, Temperatures: %v\n", len(s.opts.Tasks), s.opts.Params.Temperatures)
	s.printf("Max tokens: %v, Context sizes: %v\n", s.opts.Params.MaxTokens, s.opts.Params.Contexts)
	if s.opts.Parallel > 1 {
		s.printf("Parallel workers: %d\n", s.opts.Parallel)
	}
	s.printf("Total runs: %d\n%s\n\n", s.total, rule)
}

// runPoint performs one generate call and returns its result plus the
// progress line describing it.
func (s *sweeper) runPoint(ctx context.Context, pt Point) (result.Result, string) {
	gen, err := s.opts.Backend.Generate(ctx, backend.GenerateRequest{
		Model:       s.opts.Model,
		Prompt:      pt.Task.Prompt,
		Temperature: pt.Temperature,
		MaxTokens:   pt.MaxTokens,
		NumCtx:      pt.NumCtx,
	})
	var errLine string
	if err != nil {
		if !gen.Failed() {
			gen = backend.Generation{Text: backend.ErrorMarker + " " + err.Error()}
		}
		gen.Elapsed, gen.Tokens = 0, 0
		errLine = fmt.Sprintf("  ERROR: %v\n", err)
	}

	// A failed call scores nothing; its text is the error, not a response.
	found, total := 0, len(pt.Task.Expected)
	if err == nil {
		found, total = score.Match(gen.Text, pt.Task.Expected)
	}
	elapsed := gen.Elapsed.Seconds()
	var tps float64
	if elapsed > 0 {
		tps = float64(gen.Tokens) / elapsed
	}

	r := result.Result{
		Task:            pt.Task.Name,
		Category:        pt.Task.Category,
		Model:           s.opts.Model,
		Quantization:    s.opts.Quantization,
		Temperature:     pt.Temperature,
		MaxTokens:       pt.MaxTokens,
		NumCtx:          pt.NumCtx,
		Response:        result.Preview(gen.Text, result.MaxPreviewRunes),
		TimeSeconds:     elapsed,
		TokensGenerated: gen.Tokens,
		TokensPerSecond: tps,
		ExpectedFound:   found,
		ExpectedTotal:   total,
		SuccessRate:     score.SuccessRate(found, total),
	}
	if err != nil {
		r.Error = err.Error()
	}
	line := fmt.Sprintf("%s  -> %.2fs, %d tokens (%.1f t/s), score: %d/%d\n",
		errLine, elapsed, gen.Tokens, tps, found, total)
	return r, line
}

func describe(pt Point) string {
	return fmt.Sprintf("%s | temp=%g, max_tok=%d, ctx=%d", pt.Task.Name, pt.Temperature, pt.MaxTokens, pt.NumCtx)
}
