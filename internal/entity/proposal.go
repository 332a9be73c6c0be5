package entity

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Proposal is the structured payload a provider must return for a decision
// prompt. Importance and urgency are bounded 1..3.
type Proposal struct {
	Content    string `json:"content"`
	Importance int    `json:"importance"`
	Urgency    int    `json:"urgency"`
	Reasoning  string `json:"reasoning,omitempty"`
}

// ParseProposal builds a validated proposal from a raw model response.
// Markdown code fences around the JSON are tolerated.
func ParseProposal(raw string) (*Proposal, error) {
	payload := sanitizeProposalPayload(raw)

	if !json.Valid([]byte(payload)) {
		return nil, errors.New("invalid JSON structure")
	}

	var p Proposal
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, errors.Wrap(err, "JSON unmarshal error")
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return &p, nil
}

func sanitizeProposalPayload(raw string) string {
	payload := strings.TrimSpace(raw)
	payload = strings.TrimPrefix(payload, "```json")
	payload = strings.TrimPrefix(payload, "```")
	payload = strings.TrimSuffix(payload, "```")
	return strings.TrimSpace(payload)
}

// Validate checks required fields and bounds.
func (p *Proposal) Validate() error {
	if strings.TrimSpace(p.Content) == "" {
		return errors.New("content field is required")
	}
	if p.Importance < 1 || p.Importance > 3 {
		return errors.Errorf("invalid importance: %d (must be 1-3)", p.Importance)
	}
	if p.Urgency < 1 || p.Urgency > 3 {
		return errors.Errorf("invalid urgency: %d (must be 1-3)", p.Urgency)
	}
	return nil
}

// Draft is the unpersisted outcome of one agent reasoning call. Failed drafts
// carry the failure reason instead of a proposal and never enter the decision
// state machine; the scheduler records them as events only.
type Draft struct {
	CompanyID  string
	EmployeeID string
	Type       DecisionType
	Proposal   *Proposal
	AI         Attribution
	Failed     bool
	FailReason string
}
