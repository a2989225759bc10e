package services

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

// Oracle is the external text-generation capability. It accepts an
// instruction string and returns the raw text payload, or an error wrapping
// ErrUpstream on timeout, transport failure, non-2xx status, or empty output.
type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ChatCompletionOracle calls an OpenAI-compatible /chat/completions endpoint
type ChatCompletionOracle struct {
	baseURL    string
	apiKey     string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

// NewChatCompletionOracle creates an oracle client with a bounded timeout
func NewChatCompletionOracle(baseURL, apiKey, model string, timeout time.Duration) *ChatCompletionOracle {
	return &ChatCompletionOracle{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends the instruction as a single user message and returns the
// first choice's content. Every failure mode wraps ErrUpstream so the
// orchestrator can absorb them uniformly.
func (o *ChatCompletionOracle) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	reqBody, err := json.Marshal(chatCompletionRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to build request: %v", ErrUpstream, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", ErrUpstream, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt := string(body)
		if len(excerpt) > 500 {
			excerpt = excerpt[:500]
		}
		return "", fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, excerpt)
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("%w: unreadable response: %v", ErrUpstream, err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrUpstream, completion.Error.Message)
	}
	if len(completion.Choices) == 0 || strings.TrimSpace(completion.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: empty output", ErrUpstream)
	}

	return completion.Choices[0].Message.Content, nil
}
