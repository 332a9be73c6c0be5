package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/corpsim/internal/entity"
)

// ErrNotFound marks a lookup that matched no row.
var ErrNotFound = errors.New("not found")

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the SQLite repository for companies, employees, decisions and the
// scheduler's persisted state.
type Store struct {
	db *sql.DB // nil when bound to a transaction
	q  dbtx
}

// NewStore creates a store over db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

// WithTx runs fn against a store bound to one transaction. A phase's staged
// mutations commit atomically through here; any error rolls everything back.
func (s *Store) WithTx(ctx context.Context, fn func(*Store) error) error {
	if s.db == nil {
		return errors.New("already inside a transaction")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	if err := fn(&Store{q: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit tx")
}

// CreateCompany inserts a company row.
func (s *Store) CreateCompany(ctx context.Context, c entity.Company) error {
	_, err := s.q.ExecContext(ctx, `
INSERT INTO companies(id, name, topology, funds, size, is_active, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?)`,
		c.ID, c.Name, string(c.Topology), c.Funds.String(), c.Size, boolInt(c.IsActive), c.CreatedAt, c.UpdatedAt)
	return errors.Wrap(err, "insert company")
}

// GetCompany returns a company by ID, soft-deleted rows excluded.
func (s *Store) GetCompany(ctx context.Context, id string) (entity.Company, error) {
	row := s.q.QueryRowContext(ctx, `
SELECT id, name, topology, funds, size, is_active, created_at, updated_at
FROM companies WHERE id=? AND deleted_at IS NULL`, id)
	return scanCompany(row)
}

// ListCompanies returns companies newest first, soft-deleted rows excluded.
func (s *Store) ListCompanies(ctx context.Context) ([]entity.Company, error) {
	rows, err := s.q.QueryContext(ctx, `
SELECT id, name, topology, funds, size, is_active, created_at, updated_at
FROM companies WHERE deleted_at IS NULL ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, errors.Wrap(err, "list companies")
	}
	defer rows.Close()

	var out []entity.Company
	for rows.Next() {
		c, err := scanCompanyRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCompany persists mutable company fields.
func (s *Store) UpdateCompany(ctx context.Context, c entity.Company) error {
	res, err := s.q.ExecContext(ctx, `
UPDATE companies SET name=?, funds=?, size=?, is_active=?, updated_at=?
WHERE id=? AND deleted_at IS NULL`,
		c.Name, c.Funds.String(), c.Size, boolInt(c.IsActive), c.UpdatedAt, c.ID)
	if err != nil {
		return errors.Wrap(err, "update company")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeleteCompany hides a company and deactivates it together with its
// staff. History stays queryable through decisions and the event log.
func (s *Store) SoftDeleteCompany(ctx context.Context, id string, at time.Time) error {
	res, err := s.q.ExecContext(ctx, `
UPDATE companies SET deleted_at=?, is_active=0, updated_at=? WHERE id=? AND deleted_at IS NULL`, at, at, id)
	if err != nil {
		return errors.Wrap(err, "soft delete company")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	_, err = s.q.ExecContext(ctx, `
UPDATE employees SET is_active=0, updated_at=? WHERE company_id=?`, at, id)
	return errors.Wrap(err, "deactivate employees")
}

// CreateEmployee inserts an employee row.
func (s *Store) CreateEmployee(ctx context.Context, e entity.Employee) error {
	_, err := s.q.ExecContext(ctx, `
INSERT INTO employees(id, company_id, name, role, status, personality, decision_style,
                      level, experience, decisions_made, decisions_approved, is_active,
                      created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.CompanyID, e.Name, string(e.Role), string(e.Status), e.Personality, e.DecisionStyle,
		e.Level, e.Experience, e.DecisionsMade, e.DecisionsApproved, boolInt(e.IsActive),
		e.CreatedAt, e.UpdatedAt)
	return errors.Wrap(err, "insert employee")
}

// ListEmployees returns a company's roster ordered by ID.
func (s *Store) ListEmployees(ctx context.Context, companyID string) ([]entity.Employee, error) {
	rows, err := s.q.QueryContext(ctx, `
SELECT id, company_id, name, role, status, personality, decision_style,
       level, experience, decisions_made, decisions_approved, is_active, created_at, updated_at
FROM employees WHERE company_id=? ORDER BY id`, companyID)
	if err != nil {
		return nil, errors.Wrap(err, "list employees")
	}
	defer rows.Close()

	var out []entity.Employee
	for rows.Next() {
		var e entity.Employee
		var role, status string
		var active int
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.Name, &role, &status, &e.Personality, &e.DecisionStyle,
			&e.Level, &e.Experience, &e.DecisionsMade, &e.DecisionsApproved, &active, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan employee")
		}
		e.Role = entity.Role(role)
		e.Status = entity.EmployeeStatus(status)
		e.IsActive = active != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetEmployee returns one employee.
func (s *Store) GetEmployee(ctx context.Context, id string) (entity.Employee, error) {
	row := s.q.QueryRowContext(ctx, `
SELECT id, company_id, name, role, status, personality, decision_style,
       level, experience, decisions_made, decisions_approved, is_active, created_at, updated_at
FROM employees WHERE id=?`, id)

	var e entity.Employee
	var role, status string
	var active int
	err := row.Scan(&e.ID, &e.CompanyID, &e.Name, &role, &status, &e.Personality, &e.DecisionStyle,
		&e.Level, &e.Experience, &e.DecisionsMade, &e.DecisionsApproved, &active, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return entity.Employee{}, ErrNotFound
	}
	if err != nil {
		return entity.Employee{}, errors.Wrap(err, "scan employee")
	}
	e.Role = entity.Role(role)
	e.Status = entity.EmployeeStatus(status)
	e.IsActive = active != 0
	return e, nil
}

// UpdateEmployee persists mutable employee fields.
func (s *Store) UpdateEmployee(ctx context.Context, e entity.Employee) error {
	res, err := s.q.ExecContext(ctx, `
UPDATE employees SET status=?, level=?, experience=?, decisions_made=?, decisions_approved=?,
                     is_active=?, updated_at=?
WHERE id=?`,
		string(e.Status), e.Level, e.Experience, e.DecisionsMade, e.DecisionsApproved,
		boolInt(e.IsActive), e.UpdatedAt, e.ID)
	if err != nil {
		return errors.Wrap(err, "update employee")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SimSnapshot is the scheduler state persisted across restarts.
type SimSnapshot struct {
	State     entity.SimState
	Mode      entity.SimMode
	Round     int64
	Seed      int64
	UpdatedAt time.Time
}

// SaveSimState upserts the single scheduler state row.
func (s *Store) SaveSimState(ctx context.Context, snap SimSnapshot) error {
	_, err := s.q.ExecContext(ctx, `
INSERT INTO sim_state(id, state, mode, round, seed, updated_at) VALUES (1,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET state=excluded.state, mode=excluded.mode,
    round=excluded.round, seed=excluded.seed, updated_at=excluded.updated_at`,
		string(snap.State), string(snap.Mode), snap.Round, snap.Seed, snap.UpdatedAt)
	return errors.Wrap(err, "save sim state")
}

// LoadSimState returns the persisted scheduler state, ErrNotFound when the
// simulation has never run.
func (s *Store) LoadSimState(ctx context.Context) (SimSnapshot, error) {
	row := s.q.QueryRowContext(ctx, `SELECT state, mode, round, seed, updated_at FROM sim_state WHERE id=1`)
	var snap SimSnapshot
	var state, mode string
	err := row.Scan(&state, &mode, &snap.Round, &snap.Seed, &snap.UpdatedAt)
	if err == sql.ErrNoRows {
		return SimSnapshot{}, ErrNotFound
	}
	if err != nil {
		return SimSnapshot{}, errors.Wrap(err, "scan sim state")
	}
	snap.State = entity.SimState(state)
	snap.Mode = entity.SimMode(mode)
	return snap, nil
}

// ResetAll wipes companies, employees, decisions and scheduler state. Used by
// the reset control after the destruction event is logged.
func (s *Store) ResetAll(ctx context.Context) error {
	for _, stmt := range []string{
		`DELETE FROM decisions`,
		`DELETE FROM employees`,
		`DELETE FROM companies`,
		`DELETE FROM sim_state`,
	} {
		if _, err := s.q.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "reset: %s", stmt)
		}
	}
	return nil
}

func scanCompany(row *sql.Row) (entity.Company, error) {
	var c entity.Company
	var topology, funds string
	var active int
	err := row.Scan(&c.ID, &c.Name, &topology, &funds, &c.Size, &active, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return entity.Company{}, ErrNotFound
	}
	if err != nil {
		return entity.Company{}, errors.Wrap(err, "scan company")
	}
	return fillCompany(c, topology, funds, active)
}

func scanCompanyRows(rows *sql.Rows) (entity.Company, error) {
	var c entity.Company
	var topology, funds string
	var active int
	if err := rows.Scan(&c.ID, &c.Name, &topology, &funds, &c.Size, &active, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return entity.Company{}, errors.Wrap(err, "scan company")
	}
	return fillCompany(c, topology, funds, active)
}

func fillCompany(c entity.Company, topology, funds string, active int) (entity.Company, error) {
	f, err := decimal.NewFromString(funds)
	if err != nil {
		return entity.Company{}, errors.Wrapf(err, "company %s funds", c.ID)
	}
	c.Topology = entity.Topology(topology)
	c.Funds = f
	c.IsActive = active != 0
	return c, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
