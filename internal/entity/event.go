package entity

import "time"

// Severity grades events for downstream consumers.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is an append-only log entry. Events are never mutated or deleted;
// they carry the audit trail and feed notification fan-out.
type Event struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Severity    Severity       `json:"severity"`
	CompanyID   string         `json:"company_id,omitempty"`
	EmployeeID  string         `json:"employee_id,omitempty"`
	Description string         `json:"description"`
	Payload     map[string]any `json:"payload,omitempty"`
	Timestamp   time.Time      `json:"ts"`
}

// EventRecord bundles an event with its position in the durable log so
// consumers can re-sync from a known index after a disconnect.
type EventRecord struct {
	Index uint64 `json:"index"`
	Event Event  `json:"event"`
}
