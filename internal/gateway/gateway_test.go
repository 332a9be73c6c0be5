package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/corpsim/internal/clients"
	"github.com/vadiminshakov/corpsim/pkg/retrier"
)

// scriptedClient replays a fixed sequence of results.
type scriptedClient struct {
	name    string
	script  []func() (clients.CompletionResult, error)
	calls   int
	prompts []string
}

func (c *scriptedClient) Name() string { return c.name }

func (c *scriptedClient) Complete(_ context.Context, req clients.CompletionRequest) (clients.CompletionResult, error) {
	c.prompts = append(c.prompts, req.Prompt)
	if c.calls >= len(c.script) {
		return clients.CompletionResult{}, errors.New("script exhausted")
	}
	step := c.script[c.calls]
	c.calls++
	return step()
}

func ok(content string, cost string) func() (clients.CompletionResult, error) {
	return func() (clients.CompletionResult, error) {
		return clients.CompletionResult{
			Content:          content,
			Model:            "test-model",
			PromptTokens:     10,
			CompletionTokens: 20,
			Cost:             decimal.RequireFromString(cost),
		}, nil
	}
}

func fail(name string, kind clients.ErrorKind) func() (clients.CompletionResult, error) {
	return func() (clients.CompletionResult, error) {
		return clients.CompletionResult{}, clients.NewProviderError(name, kind, errors.New("boom"))
	}
}

func fastRetrier() *retrier.Retrier {
	return retrier.New(
		retrier.WithInitialInterval(time.Millisecond),
		retrier.WithMaxRetries(2),
		retrier.WithRetryIf(clients.Retryable),
	)
}

const goodProposal = `{"content":"open a second office","importance":2,"urgency":1}`

func newTestGateway(t *testing.T, providers ...clients.LLMClient) *Gateway {
	t.Helper()
	g, err := New(zap.NewNop(), NewCostLedger(), providers, WithRetrier(fastRetrier()))
	require.NoError(t, err)
	return g
}

func TestPropose_RetriesTimeoutThenSucceeds(t *testing.T) {
	client := &scriptedClient{name: "p1", script: []func() (clients.CompletionResult, error){
		fail("p1", clients.ErrTimeout),
		ok(goodProposal, "0.003"),
	}}
	g := newTestGateway(t, client)

	res, err := g.Propose(context.Background(), ProposeRequest{Prompt: "decide"})
	require.NoError(t, err)
	assert.Equal(t, "open a second office", res.Proposal.Content)
	assert.Equal(t, "p1", res.AI.Provider)

	snap := g.Ledger().Snapshot()
	assert.Equal(t, 2, snap.TotalCalls)
	assert.Equal(t, 1, snap.TotalFailures)
	assert.True(t, snap.TotalCost.Equal(decimal.RequireFromString("0.003")),
		"ledger must reflect only the successful call's cost, got %s", snap.TotalCost)
}

func TestPropose_InvalidResponseGetsOneStrictRetry(t *testing.T) {
	client := &scriptedClient{name: "p1", script: []func() (clients.CompletionResult, error){
		ok("I would expand the business.", "0.001"), // prose, unparseable
		ok(goodProposal, "0.002"),
	}}
	g := newTestGateway(t, client)

	res, err := g.Propose(context.Background(), ProposeRequest{
		Prompt:       "decide",
		StrictSuffix: "\nReturn ONLY the JSON object.",
	})
	require.NoError(t, err)
	assert.Equal(t, "open a second office", res.Proposal.Content)

	require.Len(t, client.prompts, 2)
	assert.Contains(t, client.prompts[1], "Return ONLY the JSON object")

	snap := g.Ledger().Snapshot()
	assert.Equal(t, 1, snap.TotalFailures, "the unparseable call is a recorded failure")
	assert.True(t, snap.TotalCost.Equal(decimal.RequireFromString("0.003")),
		"partial billing for the bad call stays on the ledger, got %s", snap.TotalCost)
}

func TestPropose_InvalidResponseTwiceIsTerminal(t *testing.T) {
	client := &scriptedClient{name: "p1", script: []func() (clients.CompletionResult, error){
		ok("prose", "0"),
		ok("more prose", "0"),
	}}
	g := newTestGateway(t, client)

	_, err := g.Propose(context.Background(), ProposeRequest{Prompt: "decide"})
	require.Error(t, err)
	assert.Equal(t, clients.ErrInvalidResponse, clients.KindOf(err))
	assert.Equal(t, 2, client.calls, "no further retries after the strict one")
}

func TestPropose_AuthFailureFallsBackToNextProvider(t *testing.T) {
	primary := &scriptedClient{name: "primary", script: []func() (clients.CompletionResult, error){
		fail("primary", clients.ErrAuthFailure),
	}}
	fallback := &scriptedClient{name: "backup", script: []func() (clients.CompletionResult, error){
		ok(goodProposal, "0.004"),
	}}
	g := newTestGateway(t, primary, fallback)

	res, err := g.Propose(context.Background(), ProposeRequest{Prompt: "decide"})
	require.NoError(t, err)
	assert.Equal(t, "backup", res.AI.Provider)
	assert.Equal(t, 1, primary.calls, "auth failure is terminal, no retry on primary")
}

func TestPropose_ExhaustedTransientRetries(t *testing.T) {
	client := &scriptedClient{name: "p1", script: []func() (clients.CompletionResult, error){
		fail("p1", clients.ErrRateLimited),
		fail("p1", clients.ErrRateLimited),
		fail("p1", clients.ErrRateLimited),
	}}
	g := newTestGateway(t, client)

	_, err := g.Propose(context.Background(), ProposeRequest{Prompt: "decide"})
	require.Error(t, err)
	assert.Equal(t, clients.ErrRateLimited, clients.KindOf(err))
	assert.Equal(t, 3, client.calls)

	snap := g.Ledger().Snapshot()
	assert.Equal(t, 3, snap.TotalFailures)
	assert.True(t, snap.TotalCost.IsZero(), "failed attempts are attributed zero cost")
}
