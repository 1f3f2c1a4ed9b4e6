package guardian

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultModel      = "gpt-4o"
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
	DefaultMaxTokens  = 500

	maxErrorBody = 512
)

var ErrNoCredential = errors.New("no API key configured")

type ClientConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration // per attempt
	MaxRetries int           // extra attempts after the first
	RetryDelay time.Duration
	MaxTokens  int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoCredential
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}, nil
}

func (c *Client) Name() string { return "openai" }

type oaiRequest struct {
	Model          string            `json:"model"`
	Messages       []oaiMessage      `json:"messages"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat oaiResponseFormat `json:"response_format"`
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiResponseFormat struct {
	Type string `json:"type"`
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

// Analyze sends prompt and parses the verdict. Transport failures,
// 408, 429 and 5xx responses are retried with the same request body up
// to MaxRetries times, RetryDelay apart. A reply that reached us intact
// is never retried, whatever it says.
func (c *Client) Analyze(ctx context.Context, prompt string) (Response, error) {
	body, err := json.Marshal(oaiRequest{
		Model:          c.cfg.Model,
		Messages:       []oaiMessage{{Role: "user", Content: prompt}},
		MaxTokens:      c.cfg.MaxTokens,
		ResponseFormat: oaiResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return Response{}, &Error{Kind: KindTransport, Err: fmt.Errorf("marshal: %w", err)}
	}

	attempts := c.cfg.MaxRetries + 1
	var lastErr *Error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, c.cfg.RetryDelay); err != nil {
				break
			}
		}

		content, aerr := c.attempt(ctx, body)
		if aerr == nil {
			resp, err := ParseResponse(content)
			if err != nil {
				var ge *Error
				errors.As(err, &ge)
				ge.Attempts = attempt
				return Response{}, ge
			}
			return resp, nil
		}

		aerr.Attempts = attempt
		lastErr = aerr
		if !retryable(aerr) || ctx.Err() != nil {
			break
		}
		c.logger.Debug("ai attempt failed", "attempt", attempt, "of", attempts, "kind", aerr.Kind, "error", aerr.Err)
	}

	if lastErr == nil {
		lastErr = &Error{Kind: KindTransport, Err: ctx.Err()}
	}
	return Response{}, lastErr
}

// attempt performs one bounded request and returns the message content.
func (c *Client) attempt(ctx context.Context, body []byte) (string, *Error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", &Error{Kind: KindTransport, Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &Error{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		kind := KindStatus
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			kind = KindAuth
		}
		return "", &Error{
			Kind:       kind,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("openai %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Kind: KindTransport, Err: fmt.Errorf("read body: %w", err)}
	}

	var parsed oaiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", &Error{Kind: KindParse, Err: fmt.Errorf("decode envelope: %w", err)}
	}
	if len(parsed.Choices) == 0 {
		return "", &Error{Kind: KindParse, Err: errors.New("no choices in response")}
	}
	content := parsed.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", &Error{Kind: KindParse, Err: errors.New("empty message content")}
	}
	return content, nil
}

func retryable(e *Error) bool {
	switch e.Kind {
	case KindTransport:
		return true
	case KindStatus:
		return e.StatusCode == http.StatusRequestTimeout ||
			e.StatusCode == http.StatusTooManyRequests ||
			e.StatusCode >= 500
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
