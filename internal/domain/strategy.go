package domain

import "time"

// StrategyStatus represents the state of a sourcing strategy.
// Transitions are strictly forward: pending → executing → polling →
// {completed | error}. A strategy never leaves a terminal state; a failed
// strategy is re-launched as a fresh entity, never retried in place.
type StrategyStatus string

const (
	StrategyStatusPending   StrategyStatus = "pending"
	StrategyStatusExecuting StrategyStatus = "executing"
	StrategyStatusPolling   StrategyStatus = "polling"
	StrategyStatusCompleted StrategyStatus = "completed"
	StrategyStatusError     StrategyStatus = "error"
)

// strategyRank orders statuses for forward-only transition checks.
var strategyRank = map[StrategyStatus]int{
	StrategyStatusPending:   0,
	StrategyStatusExecuting: 1,
	StrategyStatusPolling:   2,
	StrategyStatusCompleted: 3,
	StrategyStatusError:     3,
}

// CanTransitionTo reports whether moving from s to next is a forward transition.
func (s StrategyStatus) CanTransitionTo(next StrategyStatus) bool {
	from, ok := strategyRank[s]
	if !ok {
		return false
	}
	to, ok := strategyRank[next]
	if !ok {
		return false
	}
	return to > from
}

// IsTerminal reports whether the status is completed or error.
func (s StrategyStatus) IsTerminal() bool {
	return s == StrategyStatusCompleted || s == StrategyStatusError
}

// SourcingStrategy is one externally-executed sourcing query variant
// belonging to a search.
type SourcingStrategy struct {
	ID              string         `db:"id"                json:"id"`
	SearchID        string         `db:"search_id"         json:"search_id"`
	Name            string         `db:"name"              json:"name"`
	Payload         []byte         `db:"payload"           json:"payload,omitempty"`
	Status          StrategyStatus `db:"status"            json:"status"`
	ExternalTaskID  *string        `db:"external_task_id"  json:"external_task_id,omitempty"`
	CandidatesFound int            `db:"candidates_found"  json:"candidates_found"`
	ErrorMessage    *string        `db:"error_message"     json:"error_message,omitempty"`
	CreatedAt       time.Time      `db:"created_at"        json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"        json:"updated_at"`
}
