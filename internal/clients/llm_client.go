package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const defaultHTTPTimeout = 60 * time.Second

// CompletionRequest is one chat completion call.
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// CompletionResult is the raw provider reply plus token usage and the cost
// derived from the provider's pricing.
type CompletionResult struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Cost             decimal.Decimal
}

// LLMClient is the uniform interface over pluggable AI reasoning backends.
// Implementations perform exactly one attempt; retry policy lives in the
// gateway.
type LLMClient interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// OpenAICompatibleClient talks to any OpenAI-compatible chat completion API.
type OpenAICompatibleClient struct {
	name       string
	apiURL     string
	apiKey     string
	model      string
	inPricePer decimal.Decimal // per 1k prompt tokens
	outPrice   decimal.Decimal // per 1k completion tokens
	httpClient *http.Client
}

// NewOpenAICompatibleClient creates a client for an OpenAI-compatible API.
// Prices are per 1000 tokens and feed cost attribution on every result.
func NewOpenAICompatibleClient(name, apiURL, apiKey, model string, inPricePer1K, outPricePer1K decimal.Decimal) *OpenAICompatibleClient {
	return &OpenAICompatibleClient{
		name:       name,
		apiURL:     apiURL,
		apiKey:     apiKey,
		model:      model,
		inPricePer: inPricePer1K,
		outPrice:   outPricePer1K,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (c *OpenAICompatibleClient) Name() string { return c.name }

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string    `json:"model"`
	Choices []choice  `json:"choices"`
	Usage   usage     `json:"usage"`
	Error   *apiError `json:"error,omitempty"`
}

type choice struct {
	Message      message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// Complete performs a single chat completion attempt. Failures come back as
// *ProviderError so the gateway can apply per-kind retry policy.
func (c *OpenAICompatibleClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	if c.apiKey == "" {
		return CompletionResult{}, NewProviderError(c.name, ErrAuthFailure, errors.New("API key is empty"))
	}

	body := chatRequest{
		Model:       c.model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages: []message{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return CompletionResult{}, NewProviderError(c.name, ErrInvalidResponse, errors.Wrap(err, "marshal request"))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return CompletionResult{}, NewProviderError(c.name, ErrInvalidResponse, errors.Wrap(err, "create request"))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return CompletionResult{}, NewProviderError(c.name, classifyTransportError(err), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return CompletionResult{}, NewProviderError(c.name, ErrTimeout, errors.Wrap(err, "read response body"))
	}

	if kind, bad := classifyStatus(resp.StatusCode); bad {
		return CompletionResult{}, NewProviderError(c.name, kind,
			errors.Errorf("API returned status %d: %s", resp.StatusCode, truncate(string(raw), 200)))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(raw, &chatResp); err != nil {
		return CompletionResult{}, NewProviderError(c.name, ErrInvalidResponse, errors.Wrap(err, "unmarshal response"))
	}
	if chatResp.Error != nil {
		return CompletionResult{}, NewProviderError(c.name, ErrInvalidResponse,
			errors.Errorf("API error: %s (type: %s, code: %s)", chatResp.Error.Message, chatResp.Error.Type, chatResp.Error.Code))
	}
	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message.Content == "" {
		return CompletionResult{}, NewProviderError(c.name, ErrInvalidResponse, errors.New("API returned no choices"))
	}

	model := chatResp.Model
	if model == "" {
		model = c.model
	}

	return CompletionResult{
		Content:          chatResp.Choices[0].Message.Content,
		Model:            model,
		PromptTokens:     chatResp.Usage.PromptTokens,
		CompletionTokens: chatResp.Usage.CompletionTokens,
		Cost:             c.cost(chatResp.Usage),
	}, nil
}

func (c *OpenAICompatibleClient) cost(u usage) decimal.Decimal {
	thousand := decimal.NewFromInt(1000)
	in := c.inPricePer.Mul(decimal.NewFromInt(int64(u.PromptTokens))).Div(thousand)
	out := c.outPrice.Mul(decimal.NewFromInt(int64(u.CompletionTokens))).Div(thousand)
	return in.Add(out)
}

func classifyTransportError(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return ErrTimeout // connection resets and refusals are transient too
}

func classifyStatus(code int) (ErrorKind, bool) {
	switch {
	case code == http.StatusOK:
		return "", false
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrAuthFailure, true
	case code == http.StatusTooManyRequests:
		return ErrRateLimited, true
	case code >= 500:
		return ErrTimeout, true
	default:
		return ErrInvalidResponse, true
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
