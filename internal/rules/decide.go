package rules

import (
	"fmt"

	"github.com/autoclaim/kestrel/internal/domain"
)

// decide folds check outcomes into the final verdict. This is the only
// place the raw score, compounding and confidence are computed; checks
// themselves stay pure.
func (e *Engine) decide(in *checkInput, outcomes []Outcome) *domain.VerificationResult {
	passed := make([]string, 0, len(outcomes))
	failed := make([]domain.FailedRule, 0)

	rawScore := 0.0
	criticalCount := 0
	highCount := 0
	for _, o := range outcomes {
		if o.Failure == nil {
			passed = append(passed, o.PassID)
			continue
		}
		failed = append(failed, *o.Failure)
		rawScore += e.cfg.Weight(o.Failure.Severity) + o.Penalty
		switch o.Failure.Severity {
		case domain.SeverityCritical:
			criticalCount++
		case domain.SeverityHigh:
			highCount++
		}
	}

	// Clustered severe failures compound the score.
	finalScore := rawScore
	if criticalCount+highCount >= e.cfg.CompoundFailureThreshold {
		finalScore *= e.cfg.CompoundMultiplier
	}

	// Weighted confidence: pass rate minus a capped severity penalty,
	// scaled to 0-100.
	passRate := 1.0
	if total := len(passed) + len(failed); total > 0 {
		passRate = float64(len(passed)) / float64(total)
	}
	severityPenalty := finalScore / 50.0
	if severityPenalty > 1.0 {
		severityPenalty = 1.0
	}
	confidence := (passRate - severityPenalty) * 100.0
	if confidence < 0 {
		confidence = 0
	}

	result := &domain.VerificationResult{
		SeverityScore: finalScore,
		PassedChecks:  passed,
		FailedChecks:  failed,
		Timestamp:     in.Now,
	}

	switch {
	case len(failed) == 0:
		result.Status = domain.VerdictApproved
		result.DecisionReason = "All verification checks passed."
		result.ConfidenceLevel = domain.ConfidenceHigh
		result.AutoApproved = true

	case criticalCount > 0:
		result.Status = domain.VerdictRejected
		result.DecisionReason = fmt.Sprintf("%d critical fraud indicator(s) detected.", criticalCount)
		result.ConfidenceLevel = domain.ConfidenceHigh
		result.RequiresHumanReview = true

	case finalScore >= e.cfg.AutoRejectScoreThreshold:
		result.Status = domain.VerdictRejected
		result.DecisionReason = fmt.Sprintf(
			"Multiple fraud indicators accumulated (severity score: %.1f).", finalScore)
		result.ConfidenceLevel = domain.ConfidenceHigh
		result.RequiresHumanReview = true

	case finalScore >= e.cfg.FlagForReviewScoreThreshold:
		result.Status = domain.VerdictFlagged
		result.DecisionReason = "Verification issues require human review."
		result.ConfidenceLevel = domain.ConfidenceMedium
		result.RequiresHumanReview = true

	default:
		// Only LOW-severity residue.
		result.Status = domain.VerdictApproved
		result.DecisionReason = "Minor verification issues within acceptable range."
		result.ConfidenceLevel = domain.ConfidenceMedium
		result.AutoApproved = true
		result.RequiresMonitoring = true
	}

	result.ConfidenceScore = confidence
	return result
}
