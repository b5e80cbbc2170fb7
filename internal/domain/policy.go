package domain

import "time"

// PolicyStatus is the lifecycle state of an insurance policy.
type PolicyStatus string

const (
	PolicyActive    PolicyStatus = "active"
	PolicyExpired   PolicyStatus = "expired"
	PolicyCancelled PolicyStatus = "cancelled"
	PolicySuspended PolicyStatus = "suspended"
)

// PolicyRecord is an immutable policy snapshot supplied per verification
// call. Owned by the persistence layer; the engine only reads it.
type PolicyRecord struct {
	PolicyNumber        string       `json:"policyNumber"`
	TenantID            string       `json:"tenantId,omitempty"`
	HolderName          string       `json:"holderName,omitempty"`
	VehicleMake         string       `json:"vehicleMake"`
	VehicleModel        string       `json:"vehicleModel"`
	VehicleColor        string       `json:"vehicleColor,omitempty"`
	VehicleRegistration string       `json:"vehicleRegistration"`
	ChaseNumber         string       `json:"chaseNumber,omitempty"`
	Status              PolicyStatus `json:"status"`
	StartDate           string       `json:"startDate,omitempty"` // ISO date
	EndDate             string       `json:"endDate,omitempty"`   // ISO date
	PlanCoverage        int64        `json:"planCoverage"`        // whole rupees
	Location            string       `json:"location,omitempty"`
	CreatedAt           time.Time    `json:"createdAt,omitempty"`
	UpdatedAt           time.Time    `json:"updatedAt,omitempty"`
}

// ClaimHistoryEntry is one prior claim, used by the duplicate guard.
type ClaimHistoryEntry struct {
	ClaimID             string      `json:"claimId"`
	Status              ClaimStatus `json:"status"`
	CreatedAt           time.Time   `json:"createdAt"`
	VehicleRegistration string      `json:"vehicleRegistration"`
}

// ClaimStatus is the lifecycle state of a claim.
type ClaimStatus string

const (
	ClaimPending    ClaimStatus = "pending"
	ClaimProcessing ClaimStatus = "processing"
	ClaimApproved   ClaimStatus = "approved"
	ClaimFlagged    ClaimStatus = "flagged"
	ClaimRejected   ClaimStatus = "rejected"
)

// Open reports whether the claim is still being worked on.
func (s ClaimStatus) Open() bool {
	return s == ClaimPending || s == ClaimProcessing
}
