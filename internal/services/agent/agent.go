// Package agent turns one employee plus one company snapshot into one
// decision draft. The agent never returns an error to the round loop: a
// failed reasoning call produces a failed draft carrying the reason, so a
// flaky provider degrades a single employee's turn instead of the round.
package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/vadiminshakov/corpsim/internal/clients"
	"github.com/vadiminshakov/corpsim/internal/entity"
	"github.com/vadiminshakov/corpsim/internal/gateway"
	"github.com/vadiminshakov/corpsim/internal/services/promptbuilder"
)

// Proposer is the slice of the gateway the agent needs.
type Proposer interface {
	Propose(ctx context.Context, req gateway.ProposeRequest) (gateway.ProposeResult, error)
}

// Agent drives decision reasoning for employees.
type Agent struct {
	gw      Proposer
	prompts *promptbuilder.PromptBuilder
	logger  *zap.Logger
}

// New creates an Agent.
func New(logger *zap.Logger, gw Proposer) *Agent {
	return &Agent{
		gw:      gw,
		prompts: promptbuilder.New(),
		logger:  logger,
	}
}

// Decide produces a draft for one employee. The draft is marked failed when
// the provider chain could not deliver a valid proposal.
func (a *Agent) Decide(ctx context.Context, emp entity.Employee, sit promptbuilder.Situation, decisionType entity.DecisionType) entity.Draft {
	draft := entity.Draft{
		CompanyID:  emp.CompanyID,
		EmployeeID: emp.ID,
		Type:       decisionType,
	}

	res, err := a.gw.Propose(ctx, gateway.ProposeRequest{
		System:       promptbuilder.SystemPrompt,
		Prompt:       a.prompts.BuildUserPrompt(emp, sit, decisionType),
		StrictSuffix: promptbuilder.StrictSuffix,
		Temperature:  0.7,
	})
	if err != nil {
		draft.Failed = true
		draft.FailReason = failReason(err)
		a.logger.Warn("decision call failed",
			zap.String("employee", emp.ID),
			zap.String("company", emp.CompanyID),
			zap.Error(err))
		return draft
	}

	draft.Proposal = res.Proposal
	draft.AI = res.AI
	return draft
}

// failReason collapses the error into the taxonomy kind when one is
// attached, full text otherwise.
func failReason(err error) string {
	if kind := clients.KindOf(err); kind != "" {
		return string(kind)
	}
	return err.Error()
}
