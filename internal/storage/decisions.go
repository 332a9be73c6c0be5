package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/corpsim/internal/entity"
)

const decisionColumns = `
id, company_id, employee_id, decision_type, content, reasoning, importance, urgency,
status, round, ai_provider, ai_model, prompt_tokens, completion_tokens, ai_cost,
votes_for, votes_against, abstentions, eligible_voters, eligible, ballots,
vote_deadline_round, created_at, resolved_at`

// InsertDecision persists a new decision record.
func (s *Store) InsertDecision(ctx context.Context, d entity.Decision) error {
	eligible, ballots, err := marshalBallotState(d)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx, `
INSERT INTO decisions(`+strings.TrimSpace(decisionColumns)+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.CompanyID, d.EmployeeID, string(d.Type), d.Content, d.Reasoning, d.Importance, d.Urgency,
		string(d.Status), d.Round, d.AI.Provider, d.AI.Model, d.AI.PromptTokens, d.AI.CompletionTokens,
		d.AI.Cost.String(), d.VotesFor, d.VotesAgainst, d.Abstentions, d.EligibleVoters,
		eligible, ballots, d.VoteDeadlineRound, d.CreatedAt, nullTime(d.ResolvedAt))
	return errors.Wrap(err, "insert decision")
}

// UpdateDecision persists the mutable lifecycle fields of a decision.
func (s *Store) UpdateDecision(ctx context.Context, d entity.Decision) error {
	eligible, ballots, err := marshalBallotState(d)
	if err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx, `
UPDATE decisions SET status=?, votes_for=?, votes_against=?, abstentions=?, eligible_voters=?,
                     eligible=?, ballots=?, vote_deadline_round=?, resolved_at=?
WHERE id=?`,
		string(d.Status), d.VotesFor, d.VotesAgainst, d.Abstentions, d.EligibleVoters,
		eligible, ballots, d.VoteDeadlineRound, nullTime(d.ResolvedAt), d.ID)
	if err != nil {
		return errors.Wrap(err, "update decision")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetDecision returns one decision by ID.
func (s *Store) GetDecision(ctx context.Context, id string) (entity.Decision, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+strings.TrimSpace(decisionColumns)+` FROM decisions WHERE id=?`, id)
	if err != nil {
		return entity.Decision{}, errors.Wrap(err, "get decision")
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return entity.Decision{}, errors.Wrap(err, "get decision")
		}
		return entity.Decision{}, ErrNotFound
	}
	return scanDecision(rows)
}

// DecisionFilter narrows ListDecisions. Zero values mean "any".
type DecisionFilter struct {
	CompanyID string
	Status    entity.DecisionStatus
	Round     int64
	Limit     int
	Offset    int
}

// ListDecisions returns decisions newest first under the filter.
func (s *Store) ListDecisions(ctx context.Context, f DecisionFilter) ([]entity.Decision, error) {
	query := `SELECT ` + strings.TrimSpace(decisionColumns) + ` FROM decisions`
	var (
		where []string
		args  []any
	)
	if f.CompanyID != "" {
		where = append(where, "company_id=?")
		args = append(args, f.CompanyID)
	}
	if f.Status != "" {
		where = append(where, "status=?")
		args = append(args, string(f.Status))
	}
	if f.Round > 0 {
		where = append(where, "round=?")
		args = append(args, f.Round)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, f.Offset)
		}
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list decisions")
	}
	defer rows.Close()

	var out []entity.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// OpenBallots returns in_progress decisions with an open voter set, oldest
// first so deadline sweeps process them in creation order.
func (s *Store) OpenBallots(ctx context.Context) ([]entity.Decision, error) {
	rows, err := s.q.QueryContext(ctx, `
SELECT `+strings.TrimSpace(decisionColumns)+` FROM decisions
WHERE status=? AND eligible_voters > 0 ORDER BY created_at, id`, string(entity.DecisionInProgress))
	if err != nil {
		return nil, errors.Wrap(err, "open ballots")
	}
	defer rows.Close()

	var out []entity.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// RecentDecisions returns the latest resolved or pending decisions for a
// company, oldest of the window first, shaped for situation snapshots.
func (s *Store) RecentDecisions(ctx context.Context, companyID string, limit int) ([]entity.Decision, error) {
	decisions, err := s.ListDecisions(ctx, DecisionFilter{CompanyID: companyID, Limit: limit})
	if err != nil {
		return nil, err
	}
	// ListDecisions is newest first; snapshots read chronologically.
	for i, j := 0, len(decisions)-1; i < j; i, j = i+1, j-1 {
		decisions[i], decisions[j] = decisions[j], decisions[i]
	}
	return decisions, nil
}

// DecisionCostTotal sums AI cost over all decisions of a company.
func (s *Store) DecisionCostTotal(ctx context.Context, companyID string) (decimal.Decimal, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT ai_cost FROM decisions WHERE company_id=?`, companyID)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "decision cost total")
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, errors.Wrap(err, "scan cost")
		}
		c, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, errors.Wrap(err, "parse cost")
		}
		total = total.Add(c)
	}
	return total, rows.Err()
}

func scanDecision(rows *sql.Rows) (entity.Decision, error) {
	var (
		d                       entity.Decision
		dtype, status, cost     string
		eligibleRaw, ballotsRaw string
		resolvedAt              sql.NullTime
	)
	err := rows.Scan(&d.ID, &d.CompanyID, &d.EmployeeID, &dtype, &d.Content, &d.Reasoning,
		&d.Importance, &d.Urgency, &status, &d.Round, &d.AI.Provider, &d.AI.Model,
		&d.AI.PromptTokens, &d.AI.CompletionTokens, &cost, &d.VotesFor, &d.VotesAgainst,
		&d.Abstentions, &d.EligibleVoters, &eligibleRaw, &ballotsRaw, &d.VoteDeadlineRound,
		&d.CreatedAt, &resolvedAt)
	if err != nil {
		return entity.Decision{}, errors.Wrap(err, "scan decision")
	}

	d.Type = entity.DecisionType(dtype)
	d.Status = entity.DecisionStatus(status)
	if d.AI.Cost, err = decimal.NewFromString(cost); err != nil {
		return entity.Decision{}, errors.Wrapf(err, "decision %s cost", d.ID)
	}
	if err := json.Unmarshal([]byte(eligibleRaw), &d.Eligible); err != nil {
		return entity.Decision{}, errors.Wrapf(err, "decision %s eligible", d.ID)
	}
	if err := json.Unmarshal([]byte(ballotsRaw), &d.Ballots); err != nil {
		return entity.Decision{}, errors.Wrapf(err, "decision %s ballots", d.ID)
	}
	if len(d.Ballots) == 0 {
		d.Ballots = nil
	}
	if len(d.Eligible) == 0 {
		d.Eligible = nil
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		d.ResolvedAt = &t
	}
	return d, nil
}

func marshalBallotState(d entity.Decision) (eligible, ballots string, err error) {
	e, err := json.Marshal(emptyIfNilSlice(d.Eligible))
	if err != nil {
		return "", "", errors.Wrap(err, "marshal eligible")
	}
	b, err := json.Marshal(emptyIfNilMap(d.Ballots))
	if err != nil {
		return "", "", errors.Wrap(err, "marshal ballots")
	}
	return string(e), string(b), nil
}

func emptyIfNilSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func emptyIfNilMap(m map[string]entity.Vote) map[string]entity.Vote {
	if m == nil {
		return map[string]entity.Vote{}
	}
	return m
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
