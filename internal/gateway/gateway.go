// Package gateway is the uniform entry point to pluggable AI reasoning
// providers: request shaping, per-kind retry policy, provider fallback and
// cost accounting live here so callers never talk to a backend directly.
package gateway

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/corpsim/internal/clients"
	"github.com/vadiminshakov/corpsim/internal/entity"
	"github.com/vadiminshakov/corpsim/pkg/retrier"
)

const (
	defaultCallTimeout   = 30 * time.Second
	defaultMaxTokens     = 400
	transientRetryBudget = 2 // extra attempts after the first, for timeout/rate_limited
)

// ProposeRequest shapes one reasoning call. StrictSuffix is appended to the
// prompt on the single invalid-response retry to demand parseable output.
type ProposeRequest struct {
	System       string
	Prompt       string
	StrictSuffix string
	Temperature  float64
	MaxTokens    int
}

// ProposeResult is a parsed proposal plus its attribution.
type ProposeResult struct {
	Proposal *entity.Proposal
	AI       entity.Attribution
}

// Gateway fans requests out to registered providers: the default first, then
// fallbacks in registration order. Stateless per call except for the shared
// cost ledger.
type Gateway struct {
	providers   []clients.LLMClient
	ledger      *CostLedger
	callTimeout time.Duration
	maxCost     decimal.Decimal
	retr        *retrier.Retrier
	logger      *zap.Logger
}

// Option configures the gateway.
type Option func(*Gateway)

// WithCallTimeout sets the hard wall-clock deadline per provider call.
func WithCallTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.callTimeout = d }
}

// WithMaxCostPerCall sets the cost ceiling per call. Calls exceeding it are
// still recorded but logged loudly.
func WithMaxCostPerCall(c decimal.Decimal) Option {
	return func(g *Gateway) { g.maxCost = c }
}

// WithRetrier overrides backoff timing, mainly for tests.
func WithRetrier(r *retrier.Retrier) Option {
	return func(g *Gateway) { g.retr = r }
}

// New creates a gateway over providers, default/fallback order preserved.
func New(logger *zap.Logger, ledger *CostLedger, providers []clients.LLMClient, opts ...Option) (*Gateway, error) {
	if len(providers) == 0 {
		return nil, errors.New("gateway needs at least one provider")
	}
	g := &Gateway{
		providers:   providers,
		ledger:      ledger,
		callTimeout: defaultCallTimeout,
		maxCost:     decimal.RequireFromString("0.05"),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.retr == nil {
		g.retr = retrier.New(
			retrier.WithInitialInterval(time.Second),
			retrier.WithMaxRetries(transientRetryBudget),
			retrier.WithRetryIf(clients.Retryable),
		)
	}
	return g, nil
}

// Ledger exposes the shared cost ledger.
func (g *Gateway) Ledger() *CostLedger { return g.ledger }

// Propose runs the request against the provider chain and returns the first
// successfully parsed proposal. Transient failures are retried with backoff,
// unparseable output gets one strict retry, and terminal failures fall
// through to the next provider.
func (g *Gateway) Propose(ctx context.Context, req ProposeRequest) (ProposeResult, error) {
	if req.MaxTokens == 0 {
		req.MaxTokens = defaultMaxTokens
	}

	var lastErr error
	for _, provider := range g.providers {
		res, err := g.proposeVia(ctx, provider, req)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		g.logger.Warn("provider failed, trying next",
			zap.String("provider", provider.Name()),
			zap.Error(err))
	}
	return ProposeResult{}, errors.Wrap(lastErr, "all providers failed")
}

func (g *Gateway) proposeVia(ctx context.Context, provider clients.LLMClient, req ProposeRequest) (ProposeResult, error) {
	result, err := g.completeWithRetry(ctx, provider, req.System, req.Prompt, req.Temperature, req.MaxTokens)
	if err != nil {
		return ProposeResult{}, err
	}

	proposal, parseErr := entity.ParseProposal(result.Content)
	if parseErr != nil {
		// The call was billed even though the output is useless.
		g.ledger.Record(provider.Name(), result.Cost, false)
		g.logger.Debug("unparseable proposal, strict retry",
			zap.String("provider", provider.Name()),
			zap.Error(parseErr))

		strictPrompt := req.Prompt + req.StrictSuffix
		result, err = g.completeWithRetry(ctx, provider, req.System, strictPrompt, 0, req.MaxTokens)
		if err != nil {
			return ProposeResult{}, err
		}
		proposal, parseErr = entity.ParseProposal(result.Content)
		if parseErr != nil {
			g.ledger.Record(provider.Name(), result.Cost, false)
			return ProposeResult{}, clients.NewProviderError(provider.Name(), clients.ErrInvalidResponse, parseErr)
		}
	}

	g.ledger.Record(provider.Name(), result.Cost, true)
	if result.Cost.GreaterThan(g.maxCost) {
		g.logger.Warn("call exceeded cost ceiling",
			zap.String("provider", provider.Name()),
			zap.String("cost", result.Cost.String()),
			zap.String("ceiling", g.maxCost.String()))
	}

	return ProposeResult{
		Proposal: proposal,
		AI: entity.Attribution{
			Provider:         provider.Name(),
			Model:            result.Model,
			PromptTokens:     result.PromptTokens,
			CompletionTokens: result.CompletionTokens,
			Cost:             result.Cost,
		},
	}, nil
}

// completeWithRetry performs the raw call under the wall-clock deadline,
// retrying transient failures. Every failed attempt is accounted at zero
// cost.
func (g *Gateway) completeWithRetry(ctx context.Context, provider clients.LLMClient, system, prompt string, temperature float64, maxTokens int) (clients.CompletionResult, error) {
	return retrier.DoWithData(g.retr, ctx, func(ctx context.Context) (clients.CompletionResult, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
		defer cancel()

		result, err := provider.Complete(callCtx, clients.CompletionRequest{
			System:      system,
			Prompt:      prompt,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
		if err != nil {
			g.ledger.Record(provider.Name(), decimal.Zero, false)
			return clients.CompletionResult{}, err
		}
		return result, nil
	})
}
