package domain_test

import (
	"testing"

	"github.com/talentpipe/sourcing/internal/domain"
)

func TestScoringProgressDone(t *testing.T) {
	testCases := []struct {
		name     string
		progress domain.ScoringProgress
		want     bool
	}{
		{name: "empty search never done", progress: domain.ScoringProgress{}, want: false},
		{name: "partially scored", progress: domain.ScoringProgress{Total: 10, Scored: 4, Errors: 2}, want: false},
		{name: "all scored", progress: domain.ScoringProgress{Total: 5, Scored: 5}, want: true},
		{name: "scored plus errors covers total", progress: domain.ScoringProgress{Total: 5, Scored: 3, Errors: 2}, want: true},
		{name: "all errored", progress: domain.ScoringProgress{Total: 3, Errors: 3}, want: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.progress.Done(); got != tc.want {
				t.Errorf("Done() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestScoringProgressPercent(t *testing.T) {
	testCases := []struct {
		name     string
		progress domain.ScoringProgress
		want     int
	}{
		{name: "no candidates", progress: domain.ScoringProgress{}, want: 0},
		{name: "half done", progress: domain.ScoringProgress{Total: 10, Scored: 5}, want: 50},
		{name: "errors count toward progress", progress: domain.ScoringProgress{Total: 10, Scored: 5, Errors: 3}, want: 80},
		{name: "complete", progress: domain.ScoringProgress{Total: 4, Scored: 4}, want: 100},
		{name: "truncates", progress: domain.ScoringProgress{Total: 3, Scored: 1}, want: 33},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.progress.Percent(); got != tc.want {
				t.Errorf("Percent() = %d, want %d", got, tc.want)
			}
		})
	}
}
