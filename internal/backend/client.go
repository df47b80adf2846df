package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultTimeout = 120 * time.Second

	// ErrorMarker prefixes the text of a failed generation.
	ErrorMarker = "ERROR:"
)

type GenerateRequest struct {
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
	NumCtx      int
}

// Generation is the outcome of one generate call. A failed call yields a
// Generation whose Text starts with ErrorMarker and whose Elapsed and Tokens
// are zero.
type Generation struct {
	Text    string
	Elapsed time.Duration
	Tokens  int
}

func (g Generation) Failed() bool {
	return strings.HasPrefix(g.Text, ErrorMarker)
}

type generateBody struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Options options `json:"options"`
}

type options struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
	NumCtx      int     `json:"num_ctx"`
}

type generateResponse struct {
	Response  string `json:"response"`
	EvalCount *int   `json:"eval_count,omitempty"`
	Error     string `json:"error,omitempty"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Client talks to an Ollama-compatible /api/generate endpoint. It holds no
// per-call state and is safe for concurrent use.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Generate sends one non-streaming generate request. It never fails
// silently: on error it returns the sentinel Generation together with the
// cause, and callers that only need the sentinel may ignore the error.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (Generation, error) {
	body, err := json.Marshal(generateBody{
		Model:  req.Model,
		Prompt: req.Prompt,
		Stream: false,
		Options: options{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
			NumCtx:      req.NumCtx,
		},
	})
	if err != nil {
		return failed(fmt.Errorf("encoding request: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return failed(fmt.Errorf("building request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return failed(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return failed(statusError(resp))
	}
	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return failed(fmt.Errorf("decoding response: %w", err))
	}
	elapsed := time.Since(start)
	if out.Error != "" {
		return failed(fmt.Errorf("backend error: %s", out.Error))
	}

	tokens := len(strings.Fields(out.Response))
	if out.EvalCount != nil {
		tokens = *out.EvalCount
	}
	return Generation{Text: out.Response, Elapsed: elapsed, Tokens: tokens}, nil
}

func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing models: %w", statusError(resp))
	}
	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decoding model list: %w", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Ping checks that the backend answers on its root endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

func failed(err error) (Generation, error) {
	return Generation{Text: ErrorMarker + " " + err.Error()}, err
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(data))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		msg = e.Error
	}
	if msg == "" {
		return fmt.Errorf("backend returned %s", resp.Status)
	}
	return fmt.Errorf("backend returned %s: %s", resp.Status, msg)
}
