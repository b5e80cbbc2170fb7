package domain

import (
	"errors"
	"math"
	"time"
)

// ErrMissingPolicy is returned when verification is invoked without a
// policy record. Soft data-quality issues never produce errors; a missing
// required argument always does.
var ErrMissingPolicy = errors.New("policy record is required")

// Severity is the weight class of a failing check.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Phase identifies which check group produced a failure.
type Phase string

const (
	PhaseIntegrity  Phase = "A"
	PhaseVehicle    Phase = "B"
	PhaseContextual Phase = "C"
	PhaseFinancial  Phase = "D"
	PhasePolicy     Phase = "E"
)

// VerdictStatus is the final claim verdict.
type VerdictStatus string

const (
	VerdictApproved VerdictStatus = "APPROVED"
	VerdictFlagged  VerdictStatus = "FLAGGED"
	VerdictRejected VerdictStatus = "REJECTED"
)

// ConfidenceLevel is the coarse confidence band of a verdict.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "LOW"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceHigh   ConfidenceLevel = "HIGH"
)

// FailedRule records one failing check. Immutable once appended.
type FailedRule struct {
	RuleID   string   `json:"rule_id"`
	RuleName string   `json:"rule_name"`
	Reason   string   `json:"reason"`
	Severity Severity `json:"severity"`
	Phase    Phase    `json:"phase"`
}

// VerificationResult is the sole artifact a verification run produces.
// Produced exactly once per run; immutable afterwards.
type VerificationResult struct {
	ID                  string          `json:"id,omitempty"`
	ClaimID             string          `json:"claimId,omitempty"`
	TenantID            string          `json:"tenantId,omitempty"`
	Status              VerdictStatus   `json:"status"`
	DecisionReason      string          `json:"decision_reason"`
	ConfidenceLevel     ConfidenceLevel `json:"confidence_level"`
	ConfidenceScore     float64         `json:"confidence_score"`
	AutoApproved        bool            `json:"auto_approved"`
	RequiresHumanReview bool            `json:"requires_human_review"`
	RequiresMonitoring  bool            `json:"requires_monitoring"`
	SeverityScore       float64         `json:"severity_score"`
	PassedChecks        []string        `json:"passed_checks"`
	FailedChecks        []FailedRule    `json:"failed_checks"`
	Timestamp           time.Time       `json:"timestamp"`
}

// VerificationResponse is the flat serialization consumed by callers.
type VerificationResponse struct {
	Status             VerdictStatus   `json:"status"`
	DecisionReason     string          `json:"decision_reason"`
	ConfidenceLevel    ConfidenceLevel `json:"confidence_level"`
	ConfidenceScore    float64         `json:"confidence_score"`
	AutoApproved       bool            `json:"auto_approved"`
	RequiresReview     bool            `json:"requires_human_review"`
	RequiresMonitoring bool            `json:"requires_monitoring"`
	SeverityScore      float64         `json:"severity_score"`
	PassedChecksCount  int             `json:"passed_checks_count"`
	FailedChecksCount  int             `json:"failed_checks_count"`
	PassedChecks       []string        `json:"passed_checks"`
	FailedChecks       []FailedRule    `json:"failed_checks"`
	Timestamp          string          `json:"timestamp"`
}

// ToResponse flattens a result for the wire. Scores are rounded to two
// decimals; the timestamp is RFC3339 UTC.
func (r *VerificationResult) ToResponse() *VerificationResponse {
	return &VerificationResponse{
		Status:             r.Status,
		DecisionReason:     r.DecisionReason,
		ConfidenceLevel:    r.ConfidenceLevel,
		ConfidenceScore:    round2(r.ConfidenceScore),
		AutoApproved:       r.AutoApproved,
		RequiresReview:     r.RequiresHumanReview,
		RequiresMonitoring: r.RequiresMonitoring,
		SeverityScore:      round2(r.SeverityScore),
		PassedChecksCount:  len(r.PassedChecks),
		FailedChecksCount:  len(r.FailedChecks),
		PassedChecks:       r.PassedChecks,
		FailedChecks:       r.FailedChecks,
		Timestamp:          r.Timestamp.UTC().Format(time.RFC3339),
	}
}

// RiskFlags returns the failed rule ids in run order.
func (r *VerificationResult) RiskFlags() []string {
	flags := make([]string, len(r.FailedChecks))
	for i, f := range r.FailedChecks {
		flags[i] = f.RuleID
	}
	return flags
}

// FraudProbability is the coarse fraud band persisted on the forensic record.
type FraudProbability string

const (
	FraudVeryLow FraudProbability = "VERY_LOW"
	FraudLow     FraudProbability = "LOW"
	FraudMedium  FraudProbability = "MEDIUM"
	FraudHigh    FraudProbability = "HIGH"
)

// FraudProbability derives the forensic fraud band from the verdict.
func (r *VerificationResult) FraudProbability() FraudProbability {
	switch r.Status {
	case VerdictRejected:
		return FraudHigh
	case VerdictFlagged:
		return FraudMedium
	case VerdictApproved:
		return FraudVeryLow
	default:
		return FraudLow
	}
}

// ReviewPriority is the human-review queue priority.
type ReviewPriority string

const (
	ReviewLow      ReviewPriority = "LOW"
	ReviewHigh     ReviewPriority = "HIGH"
	ReviewCritical ReviewPriority = "CRITICAL"
)

// ReviewPriority derives the queue priority from the verdict.
func (r *VerificationResult) ReviewPriority() ReviewPriority {
	switch {
	case r.Status == VerdictRejected:
		return ReviewCritical
	case r.RequiresHumanReview:
		return ReviewHigh
	default:
		return ReviewLow
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
