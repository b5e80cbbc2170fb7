package rules

import (
	"fmt"
	"strings"

	"github.com/autoclaim/kestrel/internal/domain"
)

// Check 11: Narrative Consistency. The claimant narrative must align with
// the visual evidence. Skipped when no narrative analysis was supplied.
func (e *Engine) checkNarrativeConsistency(in *checkInput) []Outcome {
	narrative := in.Facts.Narrative
	if narrative == nil {
		return []Outcome{pass("NARRATIVE_NOT_APPLICABLE")}
	}

	if !narrative.VisualEvidenceMatches {
		reason := "User narrative does not match visual evidence."
		if len(narrative.Inconsistencies) > 0 {
			reason = fmt.Sprintf("Narrative inconsistent with evidence: %s",
				strings.Join(narrative.Inconsistencies, "; "))
		}
		return []Outcome{fail(
			"NARRATIVE_MISMATCH",
			"Narrative Consistency",
			reason,
			domain.SeverityHigh,
			domain.PhaseContextual,
		)}
	}
	return []Outcome{pass("NARRATIVE_CONSISTENCY")}
}

// Check 12: Multi-Image Consistency. When a claim carries several photos
// the orchestrator aggregates cross-image flags; any mismatch yields a
// single HIGH failure listing everything that triggered.
func (e *Engine) checkMultiImageConsistency(in *checkInput) []Outcome {
	multi := in.Facts.MultiImage
	if multi == nil {
		return []Outcome{pass("MULTI_IMAGE_NOT_APPLICABLE")}
	}

	consistent := func(flag *bool) bool { return flag == nil || *flag }

	var issues []string
	if !consistent(multi.PlatesConsistent) {
		issues = append(issues, "different license plates across images")
	}
	if !consistent(multi.VehicleConsistent) {
		issues = append(issues, "vehicle make/model differs across images")
	}
	if !consistent(multi.LightingConsistent) {
		issues = append(issues, "time-of-day / lighting differs across images")
	}
	if !consistent(multi.DamageLocationConsistent) {
		issues = append(issues, "damage location contradicts across angles")
	}

	if len(issues) > 0 {
		return []Outcome{fail(
			"MULTI_IMAGE_INCONSISTENCY",
			"Multi-Image Consistency Check",
			fmt.Sprintf("Cross-image inconsistencies detected: %s.", strings.Join(issues, ", ")),
			domain.SeverityHigh,
			domain.PhaseContextual,
		)}
	}
	return []Outcome{pass("MULTI_IMAGE_CONSISTENT")}
}

// Check 13: Amount Threshold. Claims above the auto-approval limit always
// get at least a MEDIUM mark so a human sees them.
func (e *Engine) checkAmountThreshold(in *checkInput) []Outcome {
	if in.ClaimAmount <= e.cfg.AutoApprovalAmountThreshold {
		return []Outcome{pass("AMOUNT_THRESHOLD")}
	}
	return []Outcome{fail(
		"AMOUNT_EXCEEDS_THRESHOLD",
		"Amount Threshold Check",
		fmt.Sprintf("Claim Rs %s exceeds auto-approval limit Rs %s.",
			formatAmount(in.ClaimAmount), formatAmount(e.cfg.AutoApprovalAmountThreshold)),
		domain.SeverityMedium,
		domain.PhaseFinancial,
	)}
}

// Check 14: Damage-Cost Sanity. Cross-validates the claimed amount
// against the extractor's cost estimate range. A claim with no detected
// damage at all is CRITICAL and ends the check immediately.
func (e *Engine) checkDamageCostSanity(in *checkInput) []Outcome {
	damage := in.Facts.Damage

	if damage.Severity == domain.SeverityNone && in.ClaimAmount > 0 {
		return []Outcome{fail(
			"CLAIM_NO_DAMAGE_DETECTED",
			"Damage-Cost Sanity: No Damage",
			fmt.Sprintf("No damage detected but claim of Rs %s submitted. Possible fraud.",
				formatAmount(in.ClaimAmount)),
			domain.SeverityCritical,
			domain.PhaseFinancial,
		)}
	}

	if damage.CostMax != nil && *damage.CostMax > 0 {
		ratio := float64(in.ClaimAmount) / float64(*damage.CostMax)
		if ratio > e.cfg.MaxClaimToEstimateRatio {
			return []Outcome{fail(
				"CLAIM_INFLATED",
				"Damage-Cost Sanity: Inflated Claim",
				fmt.Sprintf("Claim Rs %s is %.1fx the max estimate Rs %s (limit: %.1fx). "+
					"Possible claim inflation.",
					formatAmount(in.ClaimAmount), ratio, formatAmount(*damage.CostMax),
					e.cfg.MaxClaimToEstimateRatio),
				domain.SeverityHigh,
				domain.PhaseFinancial,
			)}
		}
		if damage.CostMin != nil && in.ClaimAmount*2 < *damage.CostMin {
			return []Outcome{fail(
				"CLAIM_SUSPICIOUSLY_LOW",
				"Damage-Cost Sanity: Under-declared",
				fmt.Sprintf("Claim Rs %s is far below the min estimate Rs %s. "+
					"Possible under-declaration or incorrect images.",
					formatAmount(in.ClaimAmount), formatAmount(*damage.CostMin)),
				domain.SeverityLow,
				domain.PhaseFinancial,
			)}
		}
		return []Outcome{pass("DAMAGE_COST_SANITY")}
	}
	return []Outcome{pass("DAMAGE_COST_SANITY_NO_ESTIMATE")}
}
