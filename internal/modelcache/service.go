package modelcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/talentpipe/sourcing/internal/domain"
	"github.com/talentpipe/sourcing/internal/logger"
)

// Calculator computes a scoring model from parsed search criteria. Backed by
// the external scoring-model collaborator.
type Calculator interface {
	CalculateModel(ctx context.Context, criteria json.RawMessage) (payload json.RawMessage, version int, err error)
}

// Service coordinates at-most-once model computation per search.
type Service struct {
	repo       *Repository
	calculator Calculator
	logger     logger.Logger
}

// NewService creates a new model cache service.
func NewService(repo *Repository, calculator Calculator, log logger.Logger) *Service {
	return &Service{repo: repo, calculator: calculator, logger: log}
}

// EnsureComputed returns the computed model for a search, computing it first
// if no entry exists. Exactly one caller computes: the claim is an insert
// race decided by the database, losers observe the winner's entry. A caller
// that loses the claim while computation is still in flight gets
// domain.ErrModelNotComputed and should retry later.
func (s *Service) EnsureComputed(ctx context.Context, search *domain.Search) (*ScoringModel, error) {
	if m, err := s.repo.GetComputed(ctx, search.ID); err == nil {
		return m, nil
	} else if !errors.Is(err, domain.ErrModelNotComputed) {
		return nil, err
	}

	if !search.HasParsedCriteria() {
		return nil, fmt.Errorf("%w: search %s has no parsed criteria", domain.ErrValidation, search.ID)
	}

	won, err := s.repo.Claim(ctx, search.ID)
	if err != nil {
		return nil, err
	}
	if !won {
		// Another caller holds the claim; return whatever state exists now.
		return s.repo.GetComputed(ctx, search.ID)
	}

	payload, version, err := s.calculator.CalculateModel(ctx, search.ParsedCriteria)
	if err != nil {
		// Release the claim so a later call can retry the computation.
		if invErr := s.repo.Invalidate(ctx, search.ID); invErr != nil {
			s.logger.Error("failed to release scoring model claim",
				logger.String("search_id", search.ID),
				logger.Error(invErr))
		}
		return nil, fmt.Errorf("calculate scoring model: %w", err)
	}

	if err := s.repo.MarkComputed(ctx, search.ID, version, payload); err != nil {
		return nil, err
	}

	s.logger.Info("scoring model computed",
		logger.String("search_id", search.ID),
		logger.Int("version", version),
		logger.String("checksum", ChecksumOf(payload)))

	return s.repo.GetComputed(ctx, search.ID)
}

// GetComputed exposes the read path without triggering computation.
func (s *Service) GetComputed(ctx context.Context, searchID string) (*ScoringModel, error) {
	return s.repo.GetComputed(ctx, searchID)
}
