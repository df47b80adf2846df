package sweep_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/signalnine/llmsweep/internal/backend"
	"github.com/signalnine/llmsweep/internal/catalog"
	"github.com/signalnine/llmsweep/internal/result"
	"github.com/signalnine/llmsweep/internal/sweep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend answers every prompt with a canned reply and records calls.
type fakeBackend struct {
	mu      sync.Mutex
	calls   []backend.GenerateRequest
	reply   func(req backend.GenerateRequest) (backend.Generation, error)
	inUse   int
	maxUsed int
}

func (f *fakeBackend) Generate(ctx context.Context, req backend.GenerateRequest) (backend.Generation, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.inUse++
	if f.inUse > f.maxUsed {
		f.maxUsed = f.inUse
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inUse--
		f.mu.Unlock()
	}()
	if f.reply != nil {
		return f.reply(req)
	}
	return backend.Generation{Text: "Yes, because...", Elapsed: 2 * time.Second, Tokens: 10}, nil
}

var (
	taskYes = catalog.Task{Name: "logic", Category: "reasoning", Prompt: "yes?", Expected: []string{"yes"}}
	taskNum = catalog.Task{Name: "math", Category: "math", Prompt: "sum?", Expected: []string{"14", "11.2"}}
)

func defaultParams() sweep.Params {
	return sweep.Params{
		Temperatures: []float64{0.7, 0.0},
		MaxTokens:    []int{256, 128},
		Contexts:     []int{2048, 1024, 4096},
	}
}

func TestExpandOrder(t *testing.T) {
	p := sweep.Params{Temperatures: []float64{1.0, 0.0}, MaxTokens: []int{256}, Contexts: []int{2048, 1024}}
	points := sweep.Expand([]catalog.Task{taskYes, taskNum}, p)
	require.Len(t, points, 8)

	type key struct {
		task string
		temp float64
		ctx  int
	}
	want := []key{
		{"logic", 1.0, 2048}, {"logic", 1.0, 1024}, {"logic", 0.0, 2048}, {"logic", 0.0, 1024},
		{"math", 1.0, 2048}, {"math", 1.0, 1024}, {"math", 0.0, 2048}, {"math", 0.0, 1024},
	}
	for i, pt := range points {
		assert.Equal(t, i, pt.Index)
		assert.Equal(t, want[i], key{pt.Task.Name, pt.Temperature, pt.NumCtx})
	}
}

func TestTotalRuns(t *testing.T) {
	tasks := []catalog.Task{taskYes, taskNum}
	p := defaultParams()
	assert.Equal(t, 2*2*2*3, sweep.TotalRuns(tasks, p))
	assert.Len(t, sweep.Expand(tasks, p), sweep.TotalRuns(tasks, p))
}

func TestRunProducesRectangularResults(t *testing.T) {
	for _, parallel := range []int{1, 4} {
		fb := &fakeBackend{}
		tasks := []catalog.Task{taskYes, taskNum}
		results, err := sweep.Run(context.Background(), &sweep.Options{
			Model:        "llama3.2:1b",
			Quantization: "Q4_K_M",
			Params:       defaultParams(),
			Tasks:        tasks,
			Backend:      fb,
			Parallel:     parallel,
		})
		require.NoError(t, err)
		require.Len(t, results, sweep.TotalRuns(tasks, defaultParams()))
		assert.Len(t, fb.calls, len(results))

		points := sweep.Expand(tasks, defaultParams())
		for i, r := range results {
			pt := points[i]
			assert.Equal(t, pt.Task.Name, r.Task, "parallel=%d slot %d", parallel, i)
			assert.Equal(t, pt.Temperature, r.Temperature)
			assert.Equal(t, pt.MaxTokens, r.MaxTokens)
			assert.Equal(t, pt.NumCtx, r.NumCtx)
			assert.Equal(t, "llama3.2:1b", r.Model)
			assert.Equal(t, "Q4_K_M", r.Quantization)
		}
	}
}

func TestRunScoresAndThroughput(t *testing.T) {
	results, err := sweep.Run(context.Background(), &sweep.Options{
		Model:   "m",
		Params:  sweep.Params{Temperatures: []float64{0}, MaxTokens: []int{64}, Contexts: []int{512}},
		Tasks:   []catalog.Task{taskYes},
		Backend: &fakeBackend{},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, 1, r.ExpectedFound)
	assert.Equal(t, 1, r.ExpectedTotal)
	assert.Equal(t, 100.0, r.SuccessRate)
	assert.Equal(t, 2.0, r.TimeSeconds)
	assert.Equal(t, 10, r.TokensGenerated)
	assert.Equal(t, 5.0, r.TokensPerSecond)
	assert.Empty(t, r.Error)
}

func TestRunBackendFailureContinues(t *testing.T) {
	fb := &fakeBackend{reply: func(req backend.GenerateRequest) (backend.Generation, error) {
		if req.Temperature == 0.7 {
			err := context.DeadlineExceeded
			return backend.Generation{Text: backend.ErrorMarker + " " + err.Error()}, err
		}
		return backend.Generation{Text: "14 then 11.2", Elapsed: time.Second, Tokens: 4}, nil
	}}
	var out bytes.Buffer
	results, err := sweep.Run(context.Background(), &sweep.Options{
		Model:    "m",
		Params:   sweep.Params{Temperatures: []float64{0.7, 0.0}, MaxTokens: []int{64}, Contexts: []int{512}},
		Tasks:    []catalog.Task{taskNum},
		Backend:  fb,
		Progress: &out,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	failed := results[0]
	assert.Zero(t, failed.TimeSeconds)
	assert.Zero(t, failed.TokensGenerated)
	assert.Zero(t, failed.TokensPerSecond)
	assert.Zero(t, failed.SuccessRate)
	assert.Equal(t, 2, failed.ExpectedTotal)
	assert.True(t, strings.HasPrefix(failed.Response, backend.ErrorMarker))
	assert.Contains(t, failed.Error, "deadline exceeded")

	ok := results[1]
	assert.Equal(t, 100.0, ok.SuccessRate)
	assert.Equal(t, 4.0, ok.TokensPerSecond)

	assert.Contains(t, out.String(), "ERROR: context deadline exceeded")
	assert.Contains(t, out.String(), "[2/2] math | temp=0, max_tok=64, ctx=512")
}

func mathWordProblem(t *testing.T) catalog.Task {
	t.Helper()
	tasks := catalog.Filter(catalog.Default(), []string{"math_word_problem"}, "")
	require.Len(t, tasks, 1)
	return tasks[0]
}

func TestRunFailureTextIsNotScored(t *testing.T) {
	fb := &fakeBackend{reply: func(req backend.GenerateRequest) (backend.Generation, error) {
		err := errors.New(`Post "http://127.0.0.1:11434/api/generate": context deadline exceeded`)
		return backend.Generation{Text: backend.ErrorMarker + " " + err.Error()}, err
	}}
	results, err := sweep.Run(context.Background(), &sweep.Options{
		Model:   "m",
		Params:  sweep.Params{Temperatures: []float64{0}, MaxTokens: []int{64}, Contexts: []int{512}},
		Tasks:   []catalog.Task{mathWordProblem(t)},
		Backend: fb,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Contains(t, r.Response, "11434")
	assert.Zero(t, r.ExpectedFound)
	assert.Equal(t, 4, r.ExpectedTotal)
	assert.Zero(t, r.SuccessRate)
}

func TestRunTimedOutClientScoresZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	results, err := sweep.Run(context.Background(), &sweep.Options{
		Model:   "m",
		Params:  sweep.Params{Temperatures: []float64{0}, MaxTokens: []int{64}, Contexts: []int{512}},
		Tasks:   []catalog.Task{mathWordProblem(t)},
		Backend: backend.NewClient(srv.URL, 100*time.Millisecond),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.NotEmpty(t, r.Error)
	assert.Zero(t, r.TimeSeconds)
	assert.Zero(t, r.TokensPerSecond)
	assert.Zero(t, r.ExpectedFound)
	assert.Zero(t, r.SuccessRate)
}

func TestRunNormalizesMisbehavingBackend(t *testing.T) {
	fb := &fakeBackend{reply: func(req backend.GenerateRequest) (backend.Generation, error) {
		return backend.Generation{Text: "yes", Elapsed: time.Second, Tokens: 3}, errors.New("boom")
	}}
	results, err := sweep.Run(context.Background(), &sweep.Options{
		Params:  sweep.Params{Temperatures: []float64{0}, MaxTokens: []int{1}, Contexts: []int{1}},
		Tasks:   []catalog.Task{taskYes},
		Backend: fb,
	})
	require.NoError(t, err)
	r := results[0]
	assert.True(t, strings.HasPrefix(r.Response, backend.ErrorMarker))
	assert.Zero(t, r.TokensGenerated)
	assert.Zero(t, r.TokensPerSecond)
}

func TestRunZeroElapsedMeansZeroThroughput(t *testing.T) {
	fb := &fakeBackend{reply: func(req backend.GenerateRequest) (backend.Generation, error) {
		return backend.Generation{Text: "yes", Tokens: 9}, nil
	}}
	results, err := sweep.Run(context.Background(), &sweep.Options{
		Params:  defaultParams(),
		Tasks:   []catalog.Task{taskYes},
		Backend: fb,
	})
	require.NoError(t, err)
	for _, r := range results {
		assert.Zero(t, r.TimeSeconds)
		assert.Zero(t, r.TokensPerSecond)
	}
}

func TestRunEmptyExpectedScoresZero(t *testing.T) {
	results, err := sweep.Run(context.Background(), &sweep.Options{
		Params:  sweep.Params{Temperatures: []float64{0}, MaxTokens: []int{1}, Contexts: []int{1}},
		Tasks:   []catalog.Task{{Name: "open", Category: "creative", Prompt: "write"}},
		Backend: &fakeBackend{},
	})
	require.NoError(t, err)
	assert.Zero(t, results[0].ExpectedTotal)
	assert.Zero(t, results[0].SuccessRate)
}

func TestRunTruncatesPreview(t *testing.T) {
	long := strings.Repeat("yes ", 1000)
	fb := &fakeBackend{reply: func(req backend.GenerateRequest) (backend.Generation, error) {
		return backend.Generation{Text: long, Elapsed: time.Second, Tokens: 1000}, nil
	}}
	results, err := sweep.Run(context.Background(), &sweep.Options{
		Params:  sweep.Params{Temperatures: []float64{0}, MaxTokens: []int{1}, Contexts: []int{1}},
		Tasks:   []catalog.Task{taskYes},
		Backend: fb,
	})
	require.NoError(t, err)
	assert.Len(t, []rune(results[0].Response), result.MaxPreviewRunes)
}

func TestRunPreconditions(t *testing.T) {
	tests := []struct {
		name string
		opts sweep.Options
		want error
	}{
		{"no tasks", sweep.Options{Params: defaultParams(), Backend: &fakeBackend{}}, sweep.ErrNoTasks},
		{"no temperatures", sweep.Options{Tasks: []catalog.Task{taskYes}, Params: sweep.Params{MaxTokens: []int{1}, Contexts: []int{1}}, Backend: &fakeBackend{}}, sweep.ErrInvalidParams},
		{"negative temperature", sweep.Options{Tasks: []catalog.Task{taskYes}, Params: sweep.Params{Temperatures: []float64{-0.1}, MaxTokens: []int{1}, Contexts: []int{1}}, Backend: &fakeBackend{}}, sweep.ErrInvalidParams},
		{"zero max tokens", sweep.Options{Tasks: []catalog.Task{taskYes}, Params: sweep.Params{Temperatures: []float64{0}, MaxTokens: []int{0}, Contexts: []int{1}}, Backend: &fakeBackend{}}, sweep.ErrInvalidParams},
		{"zero context", sweep.Options{Tasks: []catalog.Task{taskYes}, Params: sweep.Params{Temperatures: []float64{0}, MaxTokens: []int{1}, Contexts: []int{0}}, Backend: &fakeBackend{}}, sweep.ErrInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := tt.opts.Backend.(*fakeBackend)
			_, err := sweep.Run(context.Background(), &tt.opts)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, fb.calls)
		})
	}
}

func TestRunSequentialByDefault(t *testing.T) {
	fb := &fakeBackend{}
	_, err := sweep.Run(context.Background(), &sweep.Options{
		Params: defaultParams(), Tasks: []catalog.Task{taskYes, taskNum}, Backend: fb,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, fb.maxUsed)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	fb := &fakeBackend{reply: func(req backend.GenerateRequest) (backend.Generation, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return backend.Generation{Text: "yes", Elapsed: time.Second, Tokens: 1}, nil
	}}
	results, err := sweep.Run(ctx, &sweep.Options{
		Params: defaultParams(), Tasks: []catalog.Task{taskYes}, Backend: fb,
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, results)
	assert.Equal(t, 2, calls)
}

func TestRunPrintsBanner(t *testing.T) {
	var out bytes.Buffer
	_, err := sweep.Run(context.Background(), &sweep.Options{
		Model: "llama3.2:1b", Quantization: "Q4_K_M",
		Params: defaultParams(), Tasks: []catalog.Task{taskYes}, Backend: &fakeBackend{}, Progress: &out,
	})
	require.NoError(t, err)
	s := out.String()
	assert.Contains(t, s, "BENCHMARK: llama3.2:1b (Q4_K_M)")
	assert.Contains(t, s, "Total runs: 12")
	assert.Contains(t, s, "[1/12] logic | temp=0.7, max_tok=256, ctx=2048")
	assert.Contains(t, s, "[12/12] logic | temp=0, max_tok=128, ctx=4096")
	assert.Contains(t, s, "-> 2.00s, 10 tokens (5.0 t/s), score: 1/1")
}
