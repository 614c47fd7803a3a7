package domain

// ScoringProgress is the aggregate scoring view for one search, always
// recomputed from search_candidates rows. The database is the source of
// truth; realtime events only mirror it.
type ScoringProgress struct {
	SearchID string `json:"search_id"`
	Total    int    `json:"total"`
	Scored   int    `json:"scored"`
	Errors   int    `json:"errors"`

	// Score-bucket counts for UI badges, keyed by ScoreBucket values.
	Buckets map[string]int `json:"buckets,omitempty"`
}

// Done reports whether every candidate has reached a terminal scoring state.
func (p *ScoringProgress) Done() bool {
	return p.Total > 0 && p.Scored+p.Errors >= p.Total
}

// Percent returns the terminal-state percentage, 0 when the search has no
// candidates yet.
func (p *ScoringProgress) Percent() int {
	if p.Total == 0 {
		return 0
	}
	return (p.Scored + p.Errors) * 100 / p.Total
}
