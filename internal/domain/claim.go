package domain

import (
	"time"
)

// Claim represents an incoming claim submission to be verified.
type Claim struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	PolicyNumber string `json:"policyNumber"`

	// Claimed repair/loss amount in whole rupees.
	Amount int64 `json:"amount"`

	// Claimant narrative as submitted.
	Narrative string `json:"narrative,omitempty"`

	// Incident location as reported by the claimant.
	IncidentLocation string `json:"incidentLocation,omitempty"`

	Status ClaimStatus `json:"status"`

	// Facts is the assembled perception output for this claim.
	Facts *FactBundle `json:"facts,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// AIRecommendation mirrors the verdict status once verified.
	AIRecommendation VerdictStatus `json:"aiRecommendation,omitempty"`

	// Cost estimate totals (display currency, whole rupees).
	EstimateMin int64 `json:"estimateMin,omitempty"`
	EstimateMax int64 `json:"estimateMax,omitempty"`
}

// ClaimRequest is the API payload for claim verification.
type ClaimRequest struct {
	PolicyNumber string      `json:"policyNumber"`
	Amount       int64       `json:"amount"`
	Narrative    string      `json:"narrative,omitempty"`
	Location     string      `json:"location,omitempty"`
	Facts        *FactBundle `json:"facts"`
}

// ToClaim converts a request to a Claim domain object.
func (r *ClaimRequest) ToClaim(tenantID string) *Claim {
	now := time.Now().UTC()
	return &Claim{
		TenantID:         tenantID,
		PolicyNumber:     r.PolicyNumber,
		Amount:           r.Amount,
		Narrative:        r.Narrative,
		IncidentLocation: r.Location,
		Status:           ClaimProcessing,
		Facts:            r.Facts,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// ForensicRecord is the persisted forensic summary for one verified
// claim. It is written in the same transaction as the verification
// result so a claim can never be stuck with a verdict but no forensics.
type ForensicRecord struct {
	ClaimID          string           `json:"claimId"`
	FraudProbability FraudProbability `json:"fraudProbability"`
	RiskFlags        []string         `json:"riskFlags"`
	ConfidenceScore  float64          `json:"confidenceScore"`
	ReviewPriority   ReviewPriority   `json:"reviewPriority"`
	Reasoning        string           `json:"reasoning,omitempty"`
}
