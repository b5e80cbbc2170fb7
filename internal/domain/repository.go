// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Policy operations
	SavePolicy(ctx context.Context, tenantID string, policy *PolicyRecord) error
	GetPolicy(ctx context.Context, tenantID string, policyNumber string) (*PolicyRecord, error)
	ListPolicies(ctx context.Context, tenantID string) ([]*PolicyRecord, error)
	DeletePolicy(ctx context.Context, tenantID string, policyNumber string) error

	// Claim operations
	SaveClaim(ctx context.Context, tenantID string, claim *Claim) error
	GetClaim(ctx context.Context, tenantID string, claimID string) (*Claim, error)
	UpdateClaimStatus(ctx context.Context, tenantID string, claimID string, status ClaimStatus) error

	// ListClaimHistory returns prior claims for a policy, newest first:
	// claims created at or after since, plus any still-open claim
	// regardless of age. Feeds the duplicate guard.
	ListClaimHistory(ctx context.Context, tenantID string, policyNumber string, since time.Time) ([]*ClaimHistoryEntry, error)

	// Verification results. SaveVerification persists the result and its
	// forensic record atomically.
	SaveVerification(ctx context.Context, tenantID string, result *VerificationResult, forensic *ForensicRecord) error
	GetVerification(ctx context.Context, tenantID string, verificationID string) (*VerificationResult, error)
	GetVerificationByClaim(ctx context.Context, tenantID string, claimID string) (*VerificationResult, error)

	// Custom rule operations
	SaveCustomRule(ctx context.Context, tenantID string, rule *CustomRule) error
	GetCustomRule(ctx context.Context, tenantID string, ruleID string) (*CustomRule, error)
	ListCustomRules(ctx context.Context, tenantID string) ([]*CustomRule, error)
	DeleteCustomRule(ctx context.Context, tenantID string, ruleID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
