package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// DecisionType classifies what kind of call an employee is making.
type DecisionType string

const (
	DecisionStrategic     DecisionType = "strategic"
	DecisionOperational   DecisionType = "operational"
	DecisionTactical      DecisionType = "tactical"
	DecisionCollaborative DecisionType = "collaborative"
	DecisionEmergency     DecisionType = "emergency"
)

// DecisionStatus is the decision lifecycle state. approved, rejected, tied and
// cancelled are terminal.
type DecisionStatus string

const (
	DecisionPending    DecisionStatus = "pending"
	DecisionInProgress DecisionStatus = "in_progress"
	DecisionApproved   DecisionStatus = "approved"
	DecisionRejected   DecisionStatus = "rejected"
	DecisionTied       DecisionStatus = "tied"
	DecisionCancelled  DecisionStatus = "cancelled"
)

// Terminal reports whether the status ends the lifecycle.
func (s DecisionStatus) Terminal() bool {
	switch s {
	case DecisionApproved, DecisionRejected, DecisionTied, DecisionCancelled:
		return true
	}
	return false
}

// Vote is a single ballot value.
type Vote string

const (
	VoteFor     Vote = "for"
	VoteAgainst Vote = "against"
	VoteAbstain Vote = "abstain"
)

// ValidVote reports whether s names a known ballot value.
func ValidVote(s string) bool {
	switch Vote(s) {
	case VoteFor, VoteAgainst, VoteAbstain:
		return true
	}
	return false
}

// Attribution records which provider produced the proposal text and what it
// cost. Failed calls carry zero cost unless the provider reported partial
// billing.
type Attribution struct {
	Provider         string          `json:"provider,omitempty"`
	Model            string          `json:"model,omitempty"`
	PromptTokens     int             `json:"prompt_tokens,omitempty"`
	CompletionTokens int             `json:"completion_tokens,omitempty"`
	Cost             decimal.Decimal `json:"cost"`
}

// Decision is one proposal moving through the lifecycle state machine.
// Once a terminal status is set the record is immutable.
type Decision struct {
	ID         string         `json:"id"`
	CompanyID  string         `json:"company_id"`
	EmployeeID string         `json:"employee_id"`
	Type       DecisionType   `json:"decision_type"`
	Content    string         `json:"content"`
	Reasoning  string         `json:"reasoning,omitempty"`
	Importance int            `json:"importance"`
	Urgency    int            `json:"urgency"`
	Status     DecisionStatus `json:"status"`
	Round      int64          `json:"round"`

	AI Attribution `json:"ai"`

	// Vote tally, populated only for decisions resolved by ballot. Eligible
	// is a snapshot of voter IDs taken when the ballot opens; later roster
	// changes do not affect an open ballot.
	VotesFor          int             `json:"votes_for"`
	VotesAgainst      int             `json:"votes_against"`
	Abstentions       int             `json:"abstentions"`
	EligibleVoters    int             `json:"eligible_voters"`
	Eligible          []string        `json:"eligible,omitempty"`
	Ballots           map[string]Vote `json:"ballots,omitempty"`
	VoteDeadlineRound int64           `json:"vote_deadline_round,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// AddVote records one employee's ballot. The first recorded vote wins;
// duplicates are refused so a concurrent second writer loses cleanly.
func (d *Decision) AddVote(employeeID string, v Vote) bool {
	if d.Ballots == nil {
		d.Ballots = make(map[string]Vote)
	}
	if _, voted := d.Ballots[employeeID]; voted {
		return false
	}
	d.Ballots[employeeID] = v
	switch v {
	case VoteFor:
		d.VotesFor++
	case VoteAgainst:
		d.VotesAgainst++
	default:
		d.Abstentions++
	}
	return true
}

// EligibleToVote reports whether employeeID is in the ballot's eligible
// snapshot.
func (d *Decision) EligibleToVote(employeeID string) bool {
	for _, id := range d.Eligible {
		if id == employeeID {
			return true
		}
	}
	return false
}

// VoteResult derives the outcome of the tally: approved, rejected, tied or
// no_votes.
func (d *Decision) VoteResult() string {
	total := d.VotesFor + d.VotesAgainst + d.Abstentions
	if total == 0 {
		return "no_votes"
	}
	switch {
	case d.VotesFor > d.VotesAgainst:
		return "approved"
	case d.VotesAgainst > d.VotesFor:
		return "rejected"
	default:
		return "tied"
	}
}

// ApprovalRate is votes_for over decisive votes. Zero when nobody voted
// for or against.
func (d *Decision) ApprovalRate() float64 {
	decisive := d.VotesFor + d.VotesAgainst
	if decisive == 0 {
		return 0
	}
	return float64(d.VotesFor) / float64(decisive)
}
