// Package pipeline orchestrates one claim verification end to end:
// load policy and history, evaluate operator rules, run the built-in
// engine, price the damage, and assemble the persisted artifacts.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/autoclaim/kestrel/internal/domain"
	"github.com/autoclaim/kestrel/internal/estimator"
	"github.com/autoclaim/kestrel/internal/history"
	"github.com/autoclaim/kestrel/internal/rules"
)

// Pipeline runs the full verification flow for one claim.
// Stateless across calls; safe for concurrent use.
type Pipeline struct {
	engine    *rules.Engine
	custom    *rules.CustomEngine
	estimator *estimator.Estimator
	history   *history.Service
	logger    *slog.Logger
}

// New creates a pipeline. custom may be nil when no operator rules are
// configured; history may be nil when the caller supplies policy and
// history itself.
func New(engine *rules.Engine, custom *rules.CustomEngine, est *estimator.Estimator, hist *history.Service, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		engine:    engine,
		custom:    custom,
		estimator: est,
		history:   hist,
		logger:    logger,
	}
}

// Output bundles everything one verification run produces.
type Output struct {
	Result   *domain.VerificationResult
	Forensic *domain.ForensicRecord
	Estimate *domain.CostEstimate

	// Submissions counts verification requests for the claim's policy
	// inside the duplicate window, this one included. Zero when no
	// counter backend is configured.
	Submissions int64
}

// Verify runs the pipeline for a claim with the policy and history
// already loaded. Engine errors never surface a broken verdict: the
// claim is flagged for human review instead.
func (p *Pipeline) Verify(ctx context.Context, claim *domain.Claim, policy *domain.PolicyRecord, hist []domain.ClaimHistoryEntry) *Output {
	start := time.Now()

	var extras []rules.Outcome
	if p.custom != nil {
		evaluated, err := p.custom.Evaluate(ctx, claim.TenantID, claim.Amount, claim.Facts, policy)
		if err != nil {
			p.logger.Error("custom rule evaluation failed",
				"tenant_id", claim.TenantID,
				"claim_id", claim.ID,
				"error", err,
			)
		} else {
			extras = evaluated
		}
	}

	result, err := p.engine.VerifyClaimWithExtras(claim.Amount, claim.Facts, policy, hist, extras)
	if err != nil {
		result = p.failSafeResult(claim, err)
	}

	result.ID = uuid.New().String()
	result.ClaimID = claim.ID
	result.TenantID = claim.TenantID

	out := &Output{
		Result:   result,
		Forensic: buildForensicRecord(result),
	}

	if p.estimator != nil {
		if facts := claim.Facts.Normalize(); len(facts.Damage.DamagedPanels) > 0 {
			var year string
			if facts.Vehicle != nil {
				year = facts.Vehicle.Year
			}
			out.Estimate = p.estimator.Estimate(
				facts.Damage.DamagedPanels,
				policy.VehicleMake, policy.VehicleModel, year,
			)
		}
	}

	p.logger.Info("claim verified",
		"tenant_id", claim.TenantID,
		"claim_id", claim.ID,
		"status", result.Status,
		"severity_score", result.SeverityScore,
		"failed_checks", len(result.FailedChecks),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return out
}

// VerifyRequest resolves policy and history through the history
// service, then runs Verify. Returns domain.ErrMissingPolicy when the
// policy cannot be found.
func (p *Pipeline) VerifyRequest(ctx context.Context, claim *domain.Claim) (*Output, error) {
	policy, err := p.history.LoadPolicy(ctx, claim.TenantID, claim.PolicyNumber)
	if err != nil {
		return nil, errors.Join(domain.ErrMissingPolicy, err)
	}

	windowDays := p.engine.Config().DuplicateClaimWindowDays
	entries, err := p.history.RecentClaims(ctx, claim.TenantID, claim.PolicyNumber, windowDays)
	if err != nil {
		// History is best-effort: the duplicate guard degrades to a
		// not-applicable pass rather than blocking the claim.
		p.logger.Warn("claim history lookup failed",
			"tenant_id", claim.TenantID,
			"policy_number", claim.PolicyNumber,
			"error", err,
		)
		entries = nil
	}

	hist := make([]domain.ClaimHistoryEntry, 0, len(entries))
	for _, e := range entries {
		if e.ClaimID == claim.ID {
			continue
		}
		hist = append(hist, *e)
	}

	out := p.Verify(ctx, claim, policy, hist)

	window := time.Duration(windowDays) * 24 * time.Hour
	if count, err := p.history.RecordSubmission(ctx, claim.TenantID, claim.PolicyNumber, window); err != nil {
		p.logger.Warn("submission counter failed",
			"tenant_id", claim.TenantID,
			"policy_number", claim.PolicyNumber,
			"error", err,
		)
	} else {
		out.Submissions = count
	}

	return out, nil
}

// failSafeResult produces a FLAGGED verdict when the engine cannot run.
// A broken input must never auto-approve.
func (p *Pipeline) failSafeResult(claim *domain.Claim, err error) *domain.VerificationResult {
	p.logger.Error("verification engine error, flagging claim",
		"tenant_id", claim.TenantID,
		"claim_id", claim.ID,
		"error", err,
	)
	return &domain.VerificationResult{
		Status:              domain.VerdictFlagged,
		DecisionReason:      "Verification could not complete; manual review required.",
		ConfidenceLevel:     domain.ConfidenceLow,
		RequiresHumanReview: true,
		PassedChecks:        []string{},
		FailedChecks:        []domain.FailedRule{},
		Timestamp:           time.Now().UTC(),
	}
}

func buildForensicRecord(result *domain.VerificationResult) *domain.ForensicRecord {
	return &domain.ForensicRecord{
		ClaimID:          result.ClaimID,
		FraudProbability: result.FraudProbability(),
		RiskFlags:        result.RiskFlags(),
		ConfidenceScore:  result.ConfidenceScore,
		ReviewPriority:   result.ReviewPriority(),
		Reasoning:        result.DecisionReason,
	}
}
