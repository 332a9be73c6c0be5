package clients

import (
	"context"
	"encoding/json"
	"hash/fnv"

	"github.com/shopspring/decimal"
)

// SimClient is an offline provider that produces deterministic canned
// proposals. The same prompt always yields the same proposal, which keeps
// offline runs and tests replayable. Calls cost nothing.
type SimClient struct {
	name string
}

// NewSimClient creates the simulated provider.
func NewSimClient(name string) *SimClient {
	if name == "" {
		name = "sim"
	}
	return &SimClient{name: name}
}

func (c *SimClient) Name() string { return c.name }

var cannedProposals = []string{
	"Expand into the adjacent regional market before competitors do",
	"Cut discretionary spending by ten percent to extend runway",
	"Launch a pilot program with our three largest customers",
	"Invest in automation for the most repetitive internal process",
	"Renegotiate supplier contracts ahead of the next quarter",
	"Open a dedicated customer success function",
	"Freeze hiring until revenue stabilizes",
	"Bundle the two flagship products into a single offering",
}

// Complete deterministically fabricates a structured proposal from the
// prompt's hash.
func (c *SimClient) Complete(_ context.Context, req CompletionRequest) (CompletionResult, error) {
	h := fnv.New64a()
	h.Write([]byte(req.Prompt))
	sum := h.Sum64()

	payload := struct {
		Content    string `json:"content"`
		Importance int    `json:"importance"`
		Urgency    int    `json:"urgency"`
		Reasoning  string `json:"reasoning"`
	}{
		Content:    cannedProposals[sum%uint64(len(cannedProposals))],
		Importance: int(sum/7%3) + 1,
		Urgency:    int(sum/11%3) + 1,
		Reasoning:  "simulated reasoning",
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return CompletionResult{}, NewProviderError(c.name, ErrInvalidResponse, err)
	}

	return CompletionResult{
		Content:          string(raw),
		Model:            "sim-1",
		PromptTokens:     len(req.Prompt) / 4,
		CompletionTokens: len(raw) / 4,
		Cost:             decimal.Zero,
	}, nil
}
