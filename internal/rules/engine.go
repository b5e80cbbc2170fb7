// Package rules implements the deterministic claim verification engine.
//
// Perception providers only extract structured facts; they never decide.
// Every decision is auditable: rule id, reason, severity, score. Sixteen
// built-in checks run in five phases (A integrity, B vehicle, C context,
// D financial, E policy/history); operator-defined CEL rules can be
// folded in after the built-ins. Thresholds live in domain.RuleConfig so
// they can be tuned without touching check logic.
package rules

import (
	"strings"
	"time"

	"github.com/autoclaim/kestrel/internal/domain"
)

// Outcome is the result of one check: a pass id or a typed failure.
// Penalty is an extra raw-score addition on top of the severity weight;
// only the corroboration gap check uses it.
type Outcome struct {
	PassID  string
	Failure *domain.FailedRule
	Penalty float64
}

func pass(id string) Outcome {
	return Outcome{PassID: id}
}

func fail(id, name, reason string, sev domain.Severity, phase domain.Phase) Outcome {
	return Outcome{Failure: &domain.FailedRule{
		RuleID:   id,
		RuleName: name,
		Reason:   reason,
		Severity: sev,
		Phase:    phase,
	}}
}

// checkInput carries the immutable inputs of one verification run.
type checkInput struct {
	ClaimAmount int64
	Facts       *domain.FactBundle
	Policy      *domain.PolicyRecord
	History     []domain.ClaimHistoryEntry
	Now         time.Time
}

// Engine runs the built-in verification checks. Stateless across calls;
// safe for concurrent use. The clock is injectable for deterministic tests.
type Engine struct {
	cfg *domain.RuleConfig
	now func() time.Time
}

// NewEngine creates an engine with the given thresholds. A nil config
// falls back to the production defaults.
func NewEngine(cfg *domain.RuleConfig) *Engine {
	if cfg == nil {
		cfg = domain.DefaultRuleConfig()
	}
	return &Engine{cfg: cfg, now: time.Now}
}

// Config returns the engine's threshold configuration.
func (e *Engine) Config() *domain.RuleConfig {
	return e.cfg
}

// VerifyClaim runs all built-in checks and returns the verdict.
// claimAmount is in whole rupees. policy is required; facts may be nil
// (absent sections resolve to documented defaults) and history may be
// empty. The inputs are never mutated.
func (e *Engine) VerifyClaim(claimAmount int64, facts *domain.FactBundle, policy *domain.PolicyRecord, history []domain.ClaimHistoryEntry) (*domain.VerificationResult, error) {
	return e.VerifyClaimWithExtras(claimAmount, facts, policy, history, nil)
}

// VerifyClaimWithExtras runs the built-in checks plus pre-evaluated
// extra outcomes (operator-defined CEL rules) and folds everything into
// a single verdict.
func (e *Engine) VerifyClaimWithExtras(claimAmount int64, facts *domain.FactBundle, policy *domain.PolicyRecord, history []domain.ClaimHistoryEntry, extras []Outcome) (*domain.VerificationResult, error) {
	if policy == nil {
		return nil, domain.ErrMissingPolicy
	}

	in := &checkInput{
		ClaimAmount: claimAmount,
		Facts:       facts.Normalize(),
		Policy:      policy,
		History:     history,
		Now:         e.now().UTC(),
	}

	outcomes := e.runPhaseA(in)
	outcomes = append(outcomes, e.runPhaseB(in)...)
	outcomes = append(outcomes, e.runPhaseC(in)...)
	outcomes = append(outcomes, e.runPhaseD(in)...)
	outcomes = append(outcomes, e.runPhaseE(in)...)
	outcomes = append(outcomes, extras...)

	return e.decide(in, outcomes), nil
}

// runPhaseA runs the integrity and source checks. A screen recapture
// short-circuits the phase: metadata, stock-photo and forgery checks are
// skipped because the recapture nullifies everything they inspect.
func (e *Engine) runPhaseA(in *checkInput) []Outcome {
	outcomes := e.checkImageQualityGate(in)
	for _, o := range outcomes {
		if o.Failure != nil && o.Failure.RuleID == "SCREEN_RECAPTURE" {
			return outcomes
		}
	}
	outcomes = append(outcomes, e.checkMetadata(in)...)
	outcomes = append(outcomes, e.checkReverseImageSearch(in)...)
	outcomes = append(outcomes, e.checkDigitalForgery(in)...)
	return outcomes
}

func (e *Engine) runPhaseB(in *checkInput) []Outcome {
	outcomes := e.checkVehicleMatch(in)
	outcomes = append(outcomes, e.checkLicensePlate(in)...)
	outcomes = append(outcomes, e.checkChaseNumber(in)...)
	outcomes = append(outcomes, e.checkPreExistingDamage(in)...)
	outcomes = append(outcomes, e.checkDamageCorroboration(in)...)
	outcomes = append(outcomes, e.checkTotaledMarkers(in)...)
	return outcomes
}

func (e *Engine) runPhaseC(in *checkInput) []Outcome {
	outcomes := e.checkNarrativeConsistency(in)
	outcomes = append(outcomes, e.checkMultiImageConsistency(in)...)
	return outcomes
}

func (e *Engine) runPhaseD(in *checkInput) []Outcome {
	outcomes := e.checkAmountThreshold(in)
	outcomes = append(outcomes, e.checkDamageCostSanity(in)...)
	return outcomes
}

func (e *Engine) runPhaseE(in *checkInput) []Outcome {
	outcomes := e.checkPolicyActiveAndCoverage(in)
	outcomes = append(outcomes, e.checkDuplicateClaimGuard(in)...)
	return outcomes
}

// normalizePlate upper-cases and strips spaces and dashes so
// "KL-07-CU-7475" and "kl07 cu7475" compare equal.
func normalizePlate(plate string) string {
	plate = strings.ToUpper(plate)
	plate = strings.ReplaceAll(plate, " ", "")
	return strings.ReplaceAll(plate, "-", "")
}

var locationStopwords = map[string]bool{
	"the": true, "of": true, "and": true, "in": true, "at": true, "near": true,
}

// locationMatches reports token-set overlap between two location strings
// after lower-casing, comma removal and stopword stripping. Any shared
// token counts as a match.
func locationMatches(loc1, loc2 string) bool {
	tokens := func(s string) map[string]bool {
		set := make(map[string]bool)
		for _, tok := range strings.Fields(strings.ReplaceAll(strings.ToLower(s), ",", " ")) {
			if !locationStopwords[tok] {
				set[tok] = true
			}
		}
		return set
	}
	t1 := tokens(loc1)
	for tok := range tokens(loc2) {
		if t1[tok] {
			return true
		}
	}
	return false
}

// containsEither reports case-insensitive substring containment in
// either direction. Empty strings never match.
func containsEither(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	a, b = strings.ToLower(a), strings.ToLower(b)
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// formatAmount renders a rupee amount with thousands separators.
func formatAmount(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	digits := []byte{}
	for i := 0; ; i++ {
		if i > 0 && i%3 == 0 {
			digits = append([]byte{','}, digits...)
		}
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
		if n == 0 {
			break
		}
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}
