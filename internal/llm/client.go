// Package llm is an HTTP client against a locally-hosted, ollama-style
// inference server, matching the wire format in spec §6.1.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/localcoder/agentkernel/internal/apperrors"
)

// Client requests and streams completions from a local chat endpoint.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// New creates a Client. baseURL defaults to http://localhost:11434 when
// empty, matching the teacher's ollama provider default.
func New(baseURL, model string) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &Client{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: 0, // callers control deadlines via ctx
		},
	}
}

// Complete requests a single, non-streaming completion.
func (c *Client) Complete(ctx context.Context, messages []Message, system string, opts Options) (*CompletionResult, error) {
	req := chatRequest{
		Model:    c.model,
		Messages: messages,
		System:   system,
		Stream:   false,
		Options:  opts,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperrors.Validation("llm", "Complete", "failed to encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Model("llm", "Complete", "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.Cancelled("llm", "Complete", "request cancelled", ctx.Err())
		}
		return nil, apperrors.Model("llm", "Complete", "model endpoint unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Model("llm", "Complete", fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperrors.Model("llm", "Complete", "non-JSON response from model endpoint", err)
	}
	if out.Error != "" {
		return nil, apperrors.Model("llm", "Complete", out.Error, nil)
	}

	return &CompletionResult{Content: out.Message.Content, TotalDuration: out.TotalDuration}, nil
}

// StreamComplete requests a streaming completion; chunks are delivered on
// the returned channel, one per NDJSON line, until done or ctx is
// cancelled. Each send is itself a suspension point so cancellation is
// observable within one chunk (spec §5).
func (c *Client) StreamComplete(ctx context.Context, messages []Message, system string, opts Options) (<-chan StreamChunk, error) {
	req := chatRequest{
		Model:    c.model,
		Messages: messages,
		System:   system,
		Stream:   true,
		Options:  opts,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperrors.Validation("llm", "StreamComplete", "failed to encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Model("llm", "StreamComplete", "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperrors.Model("llm", "StreamComplete", "model endpoint unreachable", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, apperrors.Model("llm", "StreamComplete", fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	out := make(chan StreamChunk, 16)
	go c.pumpStream(ctx, resp.Body, out)
	return out, nil
}

func (c *Client) pumpStream(ctx context.Context, body io.ReadCloser, out chan<- StreamChunk) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			out <- StreamChunk{Err: apperrors.Cancelled("llm", "StreamComplete", "stream cancelled", ctx.Err())}
			return
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk chatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			out <- StreamChunk{Err: apperrors.Model("llm", "StreamComplete", "non-JSON chunk from model endpoint", err)}
			return
		}
		if chunk.Error != "" {
			out <- StreamChunk{Err: apperrors.Model("llm", "StreamComplete", chunk.Error, nil)}
			return
		}

		select {
		case out <- StreamChunk{Content: chunk.Message.Content, Done: chunk.Done, TotalDuration: chunk.TotalDuration}:
		case <-ctx.Done():
			return
		}

		if chunk.Done {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		out <- StreamChunk{Err: apperrors.IO("llm", "StreamComplete", "stream read failed", err)}
	}
}

// TestConnection probes the endpoint's health via GET /api/tags, the
// ollama-style health-check route.
func (c *Client) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return apperrors.Model("llm", "TestConnection", "failed to build request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Model("llm", "TestConnection", "model endpoint unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.Model("llm", "TestConnection", fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}
	return nil
}
