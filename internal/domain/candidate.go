package domain

import (
	"encoding/json"
	"time"
)

// SearchCandidate links a candidate profile to a search, together with that
// candidate's scoring outcome. Rows are created by strategy result
// persistence (idempotent upsert by candidate id) and mutated exclusively by
// the scoring worker.
//
// Invariant: MatchScore and ScoringError are mutually exclusive. A successful
// terminal write sets MatchScore and clears the error fields; a failed
// terminal write does the reverse.
type SearchCandidate struct {
	ID              string          `db:"id"                 json:"id"`
	SearchID        string          `db:"search_id"          json:"search_id"`
	CandidateID     string          `db:"candidate_id"       json:"candidate_id"`
	Profile         json.RawMessage `db:"profile"            json:"profile,omitempty"`
	MatchScore      *int            `db:"match_score"        json:"match_score,omitempty"`
	ScoringResult   json.RawMessage `db:"scoring_result"     json:"scoring_result,omitempty"`
	ScoringError    *string         `db:"scoring_error"      json:"scoring_error,omitempty"`
	ScoringErrorAt  *time.Time      `db:"scoring_error_at"   json:"scoring_error_at,omitempty"`
	ScoringAttempts int             `db:"scoring_attempts"   json:"scoring_attempts"`
	ScoringUpdated  *time.Time      `db:"scoring_updated_at" json:"scoring_updated_at,omitempty"`
	CreatedAt       time.Time       `db:"created_at"         json:"created_at"`
}

// IsScored reports whether the candidate has a persisted match score.
func (c *SearchCandidate) IsScored() bool {
	return c.MatchScore != nil
}

// ScoreBucket assigns a scored candidate to a display bucket for UI badges.
// Unscored candidates return "unscored".
func (c *SearchCandidate) ScoreBucket() string {
	if c.MatchScore == nil {
		return "unscored"
	}
	switch score := *c.MatchScore; {
	case score >= 80:
		return "strong"
	case score >= 60:
		return "good"
	case score >= 40:
		return "fair"
	default:
		return "weak"
	}
}
