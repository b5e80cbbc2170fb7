// Package history provides claim history lookups for the duplicate guard.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/autoclaim/kestrel/internal/domain"
)

const policyCacheTTL = 5 * time.Minute

// Service loads policies and prior claims for the verification pipeline.
// Policy reads go through the cache; claim history always hits the
// repository because the duplicate guard must see the latest rows.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
	now   func() time.Time
}

// NewService creates a new history service.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		now:   time.Now,
	}
}

// LoadPolicy returns the policy snapshot for a claim, cache-aside.
func (s *Service) LoadPolicy(ctx context.Context, tenantID, policyNumber string) (*domain.PolicyRecord, error) {
	if tenantID == "" || policyNumber == "" {
		return nil, fmt.Errorf("tenantID and policyNumber are required")
	}

	if s.cache != nil {
		if policy, err := s.cache.GetPolicy(ctx, tenantID, policyNumber); err == nil && policy != nil {
			return policy, nil
		}
	}

	policy, err := s.repo.GetPolicy(ctx, tenantID, policyNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}

	if s.cache != nil {
		_ = s.cache.SetPolicy(ctx, tenantID, policy, policyCacheTTL)
	}

	return policy, nil
}

// RecentClaims returns prior claims for a policy inside the duplicate
// guard window, plus any still-open claims outside it, newest first.
func (s *Service) RecentClaims(ctx context.Context, tenantID, policyNumber string, windowDays int) ([]*domain.ClaimHistoryEntry, error) {
	if tenantID == "" || policyNumber == "" {
		return nil, fmt.Errorf("tenantID and policyNumber are required")
	}
	if windowDays <= 0 {
		windowDays = 30
	}

	since := s.now().Add(-time.Duration(windowDays) * 24 * time.Hour)
	entries, err := s.repo.ListClaimHistory(ctx, tenantID, policyNumber, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list claim history: %w", err)
	}
	return entries, nil
}

// RecordSubmission bumps the per-policy submission counter and returns
// the count inside the current window.
func (s *Service) RecordSubmission(ctx context.Context, tenantID, policyNumber string, window time.Duration) (int64, error) {
	if tenantID == "" || policyNumber == "" {
		return 0, fmt.Errorf("tenantID and policyNumber are required")
	}
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.IncrementCounter(ctx, tenantID, "submissions:"+policyNumber, window)
}
