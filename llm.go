package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ErrInferenceUnavailable means the endpoint could not produce a response
// within the retry budget. ErrInferenceParse means it responded but no
// candidate label could be read out. Both are recoverable at the solver.
var (
	ErrInferenceUnavailable = errors.New("inference unavailable")
	ErrInferenceParse       = errors.New("no option label in inference response")
)

type Inferencer interface {
	Infer(ctx context.Context, systemPrompt, userPrompt string, options []string) (label, raw string, err error)
}

type InferenceClient struct {
	provider   string
	model      string
	apiURL     string
	apiKey     string
	maxRetries int
	httpClient *http.Client
}

func NewInferenceClient(cfg Config) *InferenceClient {
	key := cfg.APIKey
	if cfg.LLMProvider == "anthropic" {
		key = cfg.AnthropicAPIKey
	}
	return &InferenceClient{
		provider:   cfg.LLMProvider,
		model:      cfg.Model,
		apiURL:     cfg.APIURL,
		apiKey:     key,
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{Timeout: time.Duration(cfg.RequestTimeout) * time.Second},
	}
}

// Infer sends the composed prompt and extracts a label from the response.
// Transient failures (timeouts, 429, 5xx) are retried with exponential
// backoff and jitter up to the configured attempt budget.
func (c *InferenceClient) Infer(ctx context.Context, systemPrompt, userPrompt string, options []string) (string, string, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := backoffDelay(attempt)
			log.Printf("llm retry attempt=%d/%d wait=%s err=%v", attempt+1, c.maxRetries, wait, lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", "", fmt.Errorf("%w: %v", ErrInferenceUnavailable, ctx.Err())
			}
		}

		var raw string
		var err error
		var retryable bool
		switch c.provider {
		case "anthropic":
			raw, err, retryable = c.callAnthropic(ctx, systemPrompt, userPrompt)
		default:
			raw, err, retryable = c.callChatCompletions(ctx, systemPrompt, userPrompt)
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", "", fmt.Errorf("%w: %v", ErrInferenceUnavailable, ctx.Err())
			}
			lastErr = err
			if !retryable {
				return "", "", fmt.Errorf("%w: %v", ErrInferenceUnavailable, err)
			}
			continue
		}

		label, ok := ExtractAnswer(raw, options)
		if !ok {
			return "", raw, fmt.Errorf("%w: %q", ErrInferenceParse, truncateForLog(raw, 200))
		}
		return label, raw, nil
	}
	return "", "", fmt.Errorf("%w: %d attempts exhausted, last error: %v", ErrInferenceUnavailable, c.maxRetries, lastErr)
}

// backoffDelay is exponential (1s, 2s, 4s, ...) capped at 30s, with up to
// 25% jitter so pooled workers do not retry in lockstep.
func backoffDelay(attempt int) time.Duration {
	base := time.Second << uint(attempt-1)
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(base) / 4))
	return base + jitter
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// callChatCompletions talks to any OpenAI-compatible endpoint (OpenRouter
// by default). The bool return reports whether the failure is retryable.
func (c *InferenceClient) callChatCompletions(ctx context.Context, systemPrompt, userPrompt string) (string, error, bool) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.1,
		MaxTokens:   10000,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err), false
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.apiURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err), false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err), true
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err), true
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("rate limited (429)"), true
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("server error %d", resp.StatusCode), true
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncateForLog(string(respBody), 200)), false
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return "", fmt.Errorf("parsing chat response: %w", err), false
	}
	if chat.Error != nil {
		return "", fmt.Errorf("API error: %s", chat.Error.Message), false
	}
	if len(chat.Choices) == 0 {
		return "", fmt.Errorf("no choices in chat response"), false
	}
	return chat.Choices[0].Message.Content, nil, false
}

func (c *InferenceClient) callAnthropic(ctx context.Context, systemPrompt, userPrompt string) (string, error, bool) {
	// Reuse the configured http client so this path has the same finite
	// request timeout as the chat-completions path.
	client := anthropic.NewClient(option.WithAPIKey(c.apiKey), option.WithHTTPClient(c.httpClient))

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 4096,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("Anthropic API error: %w", err), true
	}
	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil, false
		}
	}
	return "", fmt.Errorf("no text content in Anthropic response"), false
}

var answerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\\boxed\{([^}]+)\}`),
	regexp.MustCompile(`(?i)boxed\{([^}]+)\}`),
	regexp.MustCompile(`(?i)Final Answer[:\s]*([A-Z]?\d+|[A-I])`),
	regexp.MustCompile(`(?i)The answer is[:\s]*([A-Z]?\d+|[A-I])`),
	regexp.MustCompile(`(?i)Answer[:\s]*([A-I])`),
	regexp.MustCompile(`(?i)Option[:\s]*([A-I])`),
}

// ExtractAnswer pulls an option label out of a model response. It tries, in
// order: the whole response, boxed/answer patterns, the first line, and
// finally a whole-word scan.
func ExtractAnswer(response string, options []string) (string, bool) {
	response = strings.TrimSpace(response)
	if response == "" || len(options) == 0 {
		return "", false
	}

	for _, opt := range options {
		if response == opt {
			return opt, true
		}
	}

	for _, re := range answerPatterns {
		m := re.FindStringSubmatch(response)
		if m == nil {
			continue
		}
		ans := strings.TrimSpace(m[1])
		for _, opt := range options {
			if ans == opt {
				return opt, true
			}
		}
		for _, opt := range options {
			if strings.Contains(ans, opt) || strings.Contains(opt, ans) {
				return opt, true
			}
		}
	}

	firstLine := strings.TrimSpace(strings.SplitN(response, "\n", 2)[0])
	for _, opt := range options {
		if strings.HasPrefix(firstLine, opt) {
			return opt, true
		}
	}

	for _, opt := range options {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(opt) + `\b`)
		if re.MatchString(response) {
			return opt, true
		}
	}
	return "", false
}

func truncateForLog(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return truncateRunes(s, n) + "..."
}
