package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/parlons/internal/reliability"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 300
)

type ChatConfig struct {
	// Provider labels errors and logs, e.g. "mistral" or "openai".
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
	// RandomSeed is sent as random_seed when non-zero.
	RandomSeed int
}

// ChatCompletionsClient talks to an OpenAI-compatible chat completions API.
type ChatCompletionsClient struct {
	cfg    ChatConfig
	client *http.Client
}

func NewChatCompletionsClient(cfg ChatConfig, client *http.Client) (*ChatCompletionsClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%s api key is required", cfg.Provider)
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("%s base url is required", cfg.Provider)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("%s model is required", cfg.Provider)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &ChatCompletionsClient{cfg: cfg, client: client}, nil
}

func (c *ChatCompletionsClient) Name() string { return c.cfg.Provider }

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	RandomSeed  int       `json:"random_seed,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *ChatCompletionsClient) Complete(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		RandomSeed:  c.cfg.RandomSeed,
	})
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%s chat request: %w", c.cfg.Provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read %s response: %w", c.cfg.Provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &APIError{
			Provider:  c.cfg.Provider,
			Status:    resp.StatusCode,
			Body:      reliability.Snippet(string(raw), maxErrorBody),
			Retryable: reliability.TransientStatus(resp.StatusCode),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode %s response: %w", c.cfg.Provider, err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("unexpected response from llm provider: no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
