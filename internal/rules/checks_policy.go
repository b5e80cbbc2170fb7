package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/autoclaim/kestrel/internal/domain"
)

// Check 15: Policy Active & Coverage Gate. Three independent sub-checks:
// status, date window and coverage ceiling each record their own
// pass/fail, so a single policy can contribute up to three outcomes.
func (e *Engine) checkPolicyActiveAndCoverage(in *checkInput) []Outcome {
	policy := in.Policy
	var outcomes []Outcome

	status := domain.PolicyStatus(strings.ToLower(string(policy.Status)))
	if status != domain.PolicyActive {
		outcomes = append(outcomes, fail(
			"POLICY_INACTIVE",
			"Policy Status Check",
			fmt.Sprintf("Policy status is %q; must be %q for claim processing.",
				status, domain.PolicyActive),
			domain.SeverityCritical,
			domain.PhasePolicy,
		))
	} else {
		outcomes = append(outcomes, pass("POLICY_ACTIVE"))
	}

	// Date window at day granularity. Unparseable dates do not penalize.
	today := in.Now.Truncate(24 * time.Hour)
	inWindow := true
	if start, ok := parsePolicyDate(policy.StartDate); ok && today.Before(start.Truncate(24*time.Hour)) {
		inWindow = false
	}
	if end, ok := parsePolicyDate(policy.EndDate); ok && today.After(end.Truncate(24*time.Hour)) {
		inWindow = false
	}
	if !inWindow {
		outcomes = append(outcomes, fail(
			"POLICY_EXPIRED_OR_NOT_STARTED",
			"Policy Date Window Check",
			fmt.Sprintf("Incident date %s falls outside policy window %s to %s.",
				today.Format("2006-01-02"), policy.StartDate, policy.EndDate),
			domain.SeverityCritical,
			domain.PhasePolicy,
		))
	} else {
		outcomes = append(outcomes, pass("POLICY_DATE_WINDOW"))
	}

	if policy.PlanCoverage > 0 && in.ClaimAmount > policy.PlanCoverage {
		outcomes = append(outcomes, fail(
			"CLAIM_EXCEEDS_COVERAGE",
			"Policy Coverage Limit Check",
			fmt.Sprintf("Claim Rs %s exceeds policy coverage Rs %s. "+
				"Requires agent to assess partial payout.",
				formatAmount(in.ClaimAmount), formatAmount(policy.PlanCoverage)),
			domain.SeverityMedium,
			domain.PhasePolicy,
		))
	} else {
		outcomes = append(outcomes, pass("COVERAGE_ADEQUATE"))
	}

	return outcomes
}

// Check 16: Duplicate / Repeat-Claim Guard. Flags open claims on the same
// policy and recent non-rejected claims on the same plate. Both
// conditions can fire independently in one run.
func (e *Engine) checkDuplicateClaimGuard(in *checkInput) []Outcome {
	if len(in.History) == 0 {
		return []Outcome{pass("DUPLICATE_CLAIM_NOT_APPLICABLE")}
	}

	thisPlate := ""
	if in.Facts.OCR != nil {
		thisPlate = normalizePlate(in.Facts.OCR.PlateText)
	}
	if thisPlate == "" {
		thisPlate = normalizePlate(in.Policy.VehicleRegistration)
	}

	windowDays := e.cfg.DuplicateClaimWindowDays
	window := time.Duration(windowDays) * 24 * time.Hour

	var openClaims []string
	var samePlateRecent []string
	for _, prior := range in.History {
		if prior.Status.Open() {
			openClaims = append(openClaims, prior.ClaimID)
		}

		priorPlate := normalizePlate(prior.VehicleRegistration)
		age := in.Now.Sub(prior.CreatedAt)
		if thisPlate != "" && priorPlate == thisPlate && age <= window &&
			prior.Status != domain.ClaimRejected {
			samePlateRecent = append(samePlateRecent, prior.ClaimID)
		}
	}

	var outcomes []Outcome
	if len(openClaims) > 0 {
		outcomes = append(outcomes, fail(
			"DUPLICATE_OPEN_CLAIM",
			"Duplicate Claim Guard: Open Claim",
			fmt.Sprintf("Policy already has open/processing claim(s): %s. "+
				"New claim flagged for review.", strings.Join(openClaims, ", ")),
			domain.SeverityHigh,
			domain.PhasePolicy,
		))
	}
	if len(samePlateRecent) > 0 {
		outcomes = append(outcomes, fail(
			"DUPLICATE_PLATE_RECENT",
			"Duplicate Claim Guard: Recent Plate",
			fmt.Sprintf("Plate %q has %d recent claim(s) within %d days: %s. "+
				"Possible staged-accident fraud ring.",
				thisPlate, len(samePlateRecent), windowDays, strings.Join(samePlateRecent, ", ")),
			domain.SeverityHigh,
			domain.PhasePolicy,
		))
	}
	if len(outcomes) == 0 {
		return []Outcome{pass("NO_DUPLICATE_CLAIMS")}
	}
	return outcomes
}

// parsePolicyDate accepts ISO dates with or without a time component.
func parsePolicyDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
