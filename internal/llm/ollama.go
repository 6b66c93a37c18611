// Package llm binds the text-generation collaborator. The primary client
// talks to ollama's HTTP API directly for tight control over timeouts and
// streaming; a langchaingo binding to the same server serves as fallback.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"knowledge-rag/internal/config"
)

// pingTimeout bounds the pre-flight reachability probe.
const pingTimeout = 5 * time.Second

// Options are per-call generation knobs.
type Options struct {
	Temperature float64
	NumPredict  int
	NumCtx      int
}

// Generator produces a completion for a prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Client is the primary generation binding: a thin HTTP client for the
// ollama API.
type Client struct {
	baseURL string
	model   string
	opts    Options
	http    *http.Client
}

// NewClient creates the primary ollama client. Constructed once and shared;
// the underlying http.Client reuses connections across requests.
func NewClient(cfg config.LLMConfig, opts Options) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		opts:    opts,
		http: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSecs) * time.Second,
		},
	}
}

// Name identifies this binding in answer metadata and logs.
func (c *Client) Name() string { return "ollama" }

// Ping probes provider reachability before any prompt is built. It maps
// every failure to ErrUnreachable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}
	return nil
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
	NumCtx      int     `json:"num_ctx"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (c *Client) newGenerateRequest(ctx context.Context, prompt string, stream bool) (*http.Request, error) {
	payload := generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: stream,
		Options: generateOptions{
			Temperature: c.opts.Temperature,
			NumPredict:  c.opts.NumPredict,
			NumCtx:      c.opts.NumCtx,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// Generate runs a single non-streaming completion. Timeouts are mapped to
// ErrTimeout so the pipeline can answer with the slow-model text instead of
// falling back.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	req, err := c.newGenerateRequest(ctx, prompt, false)
	if err != nil {
		return "", err
	}

	log.Info().Int("prompt_length", len(prompt)).Str("model", c.model).Msg("calling ollama")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", fmt.Errorf("generation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("generation request failed: status %d, %s", resp.StatusCode, string(body))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding generation response: %w", err)
	}
	if out.Response == "" {
		return "", ErrEmptyResponse
	}
	return out.Response, nil
}

// Stream runs a streaming completion. Fragments arrive on the first channel
// in provider order; at most one error arrives on the second, after which
// both channels are closed. The sequence is finite and not restartable.
func (c *Client) Stream(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	frags := make(chan string)
	errc := make(chan error, 1)

	go func() {
		defer close(frags)
		defer close(errc)

		req, err := c.newGenerateRequest(ctx, prompt, true)
		if err != nil {
			errc <- err
			return
		}
		resp, err := c.http.Do(req)
		if err != nil {
			if isTimeout(err) {
				errc <- fmt.Errorf("%w: %v", ErrTimeout, err)
			} else {
				errc <- fmt.Errorf("generation request: %w", err)
			}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			errc <- fmt.Errorf("generation request failed: status %d, %s", resp.StatusCode, string(body))
			return
		}

		// ollama streams newline-delimited JSON objects.
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadBytes('\n')
			if len(bytes.TrimSpace(line)) > 0 {
				var chunk generateResponse
				if jsonErr := json.Unmarshal(bytes.TrimSpace(line), &chunk); jsonErr != nil {
					errc <- fmt.Errorf("decoding stream chunk: %w", jsonErr)
					return
				}
				if chunk.Response != "" {
					select {
					case frags <- chunk.Response:
					case <-ctx.Done():
						errc <- ctx.Err()
						return
					}
				}
				if chunk.Done {
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					errc <- fmt.Errorf("reading stream: %w", err)
				}
				return
			}
		}
	}()

	return frags, errc
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
