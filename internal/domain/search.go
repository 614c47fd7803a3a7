package domain

import (
	"encoding/json"
	"time"
)

// SearchStatus represents the lifecycle state of a search.
type SearchStatus string

const (
	SearchStatusCreated    SearchStatus = "created"
	SearchStatusProcessing SearchStatus = "processing"
	SearchStatusScoring    SearchStatus = "scoring"
	SearchStatusCompleted  SearchStatus = "completed"
	SearchStatusError      SearchStatus = "error"
)

// Search is a submitted hiring query and its derived artifacts.
// ParsedCriteria is written once by the parse step; status and progress are
// mutated by the workflow as strategies and scoring advance.
type Search struct {
	ID             string          `db:"id"              json:"id"`
	OrganizationID string          `db:"organization_id" json:"organization_id"`
	Query          string          `db:"query"           json:"query"`
	ParsedCriteria json.RawMessage `db:"parsed_criteria" json:"parsed_criteria,omitempty"`
	Status         SearchStatus    `db:"status"          json:"status"`
	Progress       int             `db:"progress"        json:"progress"`
	CreatedAt      time.Time       `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"      json:"updated_at"`
}

// HasParsedCriteria reports whether the parse step has populated criteria.
func (s *Search) HasParsedCriteria() bool {
	return len(s.ParsedCriteria) > 0
}
