// Package llm calls a hosted language model to turn a natural-language
// request into a single completion. Two wire dialects are supported: the
// Anthropic Messages API and OpenAI-compatible chat completions.
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
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"

	defaultAnthropicVersion = "2023-06-01"
)

// ErrNoAPIKey is returned when no credential was configured.
var ErrNoAPIKey = errors.New("llm api key is not configured")

// ErrEmptyReply is returned when the model produced no text.
var ErrEmptyReply = errors.New("llm returned an empty reply")

// APIError is a non-2xx reply from the upstream model.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("LLM API error [%d]: %s (type: %s)", e.StatusCode, e.Message, e.Type)
	}
	return fmt.Sprintf("LLM API error [%d]: %s", e.StatusCode, e.Message)
}

// Options configure a Client. URL is the full completions endpoint.
type Options struct {
	Provider         string
	URL              string
	APIKey           string
	Model            string
	MaxTokens        int
	AnthropicVersion string
	HTTPClient       *http.Client
}

// Client is safe for concurrent use.
type Client struct {
	provider   string
	url        string
	apiKey     string
	model      string
	maxTokens  int
	version    string
	httpClient *http.Client
}

func NewClient(opts Options) *Client {
	c := &Client{
		provider:   strings.ToLower(opts.Provider),
		url:        opts.URL,
		apiKey:     opts.APIKey,
		model:      opts.Model,
		maxTokens:  opts.MaxTokens,
		version:    opts.AnthropicVersion,
		httpClient: opts.HTTPClient,
	}
	if c.provider == "" {
		c.provider = ProviderAnthropic
	}
	if c.version == "" {
		c.version = defaultAnthropicVersion
	}
	if c.maxTokens <= 0 {
		c.maxTokens = 1024
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type openAIRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

type openAIResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one system + user exchange and returns the model's text.
// Deadlines come from ctx.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if c.apiKey == "" {
		return "", ErrNoAPIKey
	}

	var payload any
	switch c.provider {
	case ProviderAnthropic:
		payload = anthropicRequest{
			Model:     c.model,
			MaxTokens: c.maxTokens,
			System:    system,
			Messages:  []chatMessage{{Role: "user", Content: user}},
		}
	case ProviderOpenAI:
		msgs := make([]chatMessage, 0, 2)
		if system != "" {
			msgs = append(msgs, chatMessage{Role: "system", Content: system})
		}
		payload = openAIRequest{
			Model:     c.model,
			MaxTokens: c.maxTokens,
			Messages:  append(msgs, chatMessage{Role: "user", Content: user}),
		}
	default:
		return "", fmt.Errorf("unsupported llm provider %q", c.provider)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var errResp errorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil {
			apiErr.Type = errResp.Error.Type
			apiErr.Message = errResp.Error.Message
		}
		return "", apiErr
	}

	text, err := c.replyText(respBody)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.provider == ProviderAnthropic {
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", c.version)
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

func (c *Client) replyText(body []byte) (string, error) {
	if c.provider == ProviderAnthropic {
		var r anthropicResponse
		if err := json.Unmarshal(body, &r); err != nil {
			return "", fmt.Errorf("failed to unmarshal response: %w", err)
		}
		var sb strings.Builder
		for _, block := range r.Content {
			if block.Type == "text" {
				sb.WriteString(block.Text)
			}
		}
		return sb.String(), nil
	}

	var r openAIResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(r.Choices) == 0 {
		return "", ErrEmptyReply
	}
	return r.Choices[0].Message.Content, nil
}
