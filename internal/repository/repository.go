// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/autoclaim/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

// NewWithDB wraps an existing database handle. Used by tests.
func NewWithDB(db *sql.DB, driver string) *SQLRepository {
	return &SQLRepository{db: db, driver: driver}
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SavePolicy upserts a policy with tenant isolation.
func (r *SQLRepository) SavePolicy(ctx context.Context, tenantID string, policy *domain.PolicyRecord) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	createdAt := policy.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := `
		INSERT INTO policies (
			policy_number, tenant_id, holder_name, vehicle_make, vehicle_model,
			vehicle_color, vehicle_registration, chase_number, status,
			start_date, end_date, plan_coverage, location, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(policy_number, tenant_id) DO UPDATE SET
			holder_name = excluded.holder_name,
			vehicle_make = excluded.vehicle_make,
			vehicle_model = excluded.vehicle_model,
			vehicle_color = excluded.vehicle_color,
			vehicle_registration = excluded.vehicle_registration,
			chase_number = excluded.chase_number,
			status = excluded.status,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			plan_coverage = excluded.plan_coverage,
			location = excluded.location,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		policy.PolicyNumber, tenantID, policy.HolderName,
		policy.VehicleMake, policy.VehicleModel, policy.VehicleColor,
		policy.VehicleRegistration, policy.ChaseNumber, policy.Status,
		policy.StartDate, policy.EndDate, policy.PlanCoverage, policy.Location,
		createdAt, now,
	)
	return err
}

// GetPolicy retrieves a policy by number with tenant isolation.
func (r *SQLRepository) GetPolicy(ctx context.Context, tenantID string, policyNumber string) (*domain.PolicyRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT policy_number, tenant_id, holder_name, vehicle_make, vehicle_model,
			   vehicle_color, vehicle_registration, chase_number, status,
			   start_date, end_date, plan_coverage, location, created_at, updated_at
		FROM policies
		WHERE tenant_id = ? AND policy_number = ?
	`

	var policy domain.PolicyRecord
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, policyNumber).Scan(
		&policy.PolicyNumber, &policy.TenantID, &policy.HolderName,
		&policy.VehicleMake, &policy.VehicleModel, &policy.VehicleColor,
		&policy.VehicleRegistration, &policy.ChaseNumber, &policy.Status,
		&policy.StartDate, &policy.EndDate, &policy.PlanCoverage, &policy.Location,
		&policy.CreatedAt, &policy.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &policy, nil
}

// ListPolicies retrieves all policies for a tenant.
func (r *SQLRepository) ListPolicies(ctx context.Context, tenantID string) ([]*domain.PolicyRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT policy_number, tenant_id, holder_name, vehicle_make, vehicle_model,
			   vehicle_color, vehicle_registration, chase_number, status,
			   start_date, end_date, plan_coverage, location, created_at, updated_at
		FROM policies
		WHERE tenant_id = ?
		ORDER BY policy_number
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []*domain.PolicyRecord
	for rows.Next() {
		var policy domain.PolicyRecord
		if err := rows.Scan(
			&policy.PolicyNumber, &policy.TenantID, &policy.HolderName,
			&policy.VehicleMake, &policy.VehicleModel, &policy.VehicleColor,
			&policy.VehicleRegistration, &policy.ChaseNumber, &policy.Status,
			&policy.StartDate, &policy.EndDate, &policy.PlanCoverage, &policy.Location,
			&policy.CreatedAt, &policy.UpdatedAt,
		); err != nil {
			return nil, err
		}
		policies = append(policies, &policy)
	}

	return policies, rows.Err()
}

// DeletePolicy removes a policy with tenant isolation.
func (r *SQLRepository) DeletePolicy(ctx context.Context, tenantID string, policyNumber string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `DELETE FROM policies WHERE tenant_id = ? AND policy_number = ?`
	result, err := r.db.ExecContext(ctx, r.rebind(query), tenantID, policyNumber)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveClaim stores a claim with tenant isolation.
func (r *SQLRepository) SaveClaim(ctx context.Context, tenantID string, claim *domain.Claim) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	facts, _ := json.Marshal(claim.Facts)

	query := `
		INSERT INTO claims (
			id, tenant_id, policy_number, amount, narrative, incident_location,
			status, facts, ai_recommendation, estimate_min, estimate_max,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		claim.ID, tenantID, claim.PolicyNumber, claim.Amount,
		claim.Narrative, claim.IncidentLocation, claim.Status,
		string(facts), claim.AIRecommendation,
		claim.EstimateMin, claim.EstimateMax,
		claim.CreatedAt, claim.UpdatedAt,
	)
	return err
}

// GetClaim retrieves a claim by ID with tenant isolation.
func (r *SQLRepository) GetClaim(ctx context.Context, tenantID string, claimID string) (*domain.Claim, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, policy_number, amount, narrative, incident_location,
			   status, facts, ai_recommendation, estimate_min, estimate_max,
			   created_at, updated_at
		FROM claims
		WHERE tenant_id = ? AND id = ?
	`

	var claim domain.Claim
	var facts sql.NullString
	var estimateMin, estimateMax sql.NullInt64
	var recommendation sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, claimID).Scan(
		&claim.ID, &claim.TenantID, &claim.PolicyNumber, &claim.Amount,
		&claim.Narrative, &claim.IncidentLocation, &claim.Status,
		&facts, &recommendation, &estimateMin, &estimateMax,
		&claim.CreatedAt, &claim.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if facts.Valid && facts.String != "" && facts.String != "null" {
		json.Unmarshal([]byte(facts.String), &claim.Facts)
	}
	claim.AIRecommendation = domain.VerdictStatus(recommendation.String)
	claim.EstimateMin = estimateMin.Int64
	claim.EstimateMax = estimateMax.Int64

	return &claim, nil
}

// UpdateClaimStatus updates a claim's lifecycle status.
func (r *SQLRepository) UpdateClaimStatus(ctx context.Context, tenantID string, claimID string, status domain.ClaimStatus) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `UPDATE claims SET status = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`
	result, err := r.db.ExecContext(ctx, r.rebind(query), status, time.Now().UTC(), tenantID, claimID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListClaimHistory returns prior claims for a policy, newest first.
// Claims created at or after since are included, plus any still-open
// claim regardless of age so the duplicate guard always sees it.
func (r *SQLRepository) ListClaimHistory(ctx context.Context, tenantID string, policyNumber string, since time.Time) ([]*domain.ClaimHistoryEntry, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT c.id, c.status, c.created_at, p.vehicle_registration
		FROM claims c
		JOIN policies p ON p.policy_number = c.policy_number AND p.tenant_id = c.tenant_id
		WHERE c.tenant_id = ? AND c.policy_number = ?
		  AND (c.created_at >= ? OR c.status IN (?, ?))
		ORDER BY c.created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, policyNumber, since,
		domain.ClaimPending, domain.ClaimProcessing)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.ClaimHistoryEntry
	for rows.Next() {
		var entry domain.ClaimHistoryEntry
		if err := rows.Scan(&entry.ClaimID, &entry.Status, &entry.CreatedAt, &entry.VehicleRegistration); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// SaveVerification persists a verification result and its forensic
// record in one transaction, and stamps the claim with the verdict.
// Atomicity prevents a claim stuck in processing with a partial
// forensic row.
func (r *SQLRepository) SaveVerification(ctx context.Context, tenantID string, result *domain.VerificationResult, forensic *domain.ForensicRecord) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if result == nil || forensic == nil {
		return fmt.Errorf("%w: result and forensic record are required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	passed, _ := json.Marshal(result.PassedChecks)
	failed, _ := json.Marshal(result.FailedChecks)

	insertVerification := `
		INSERT INTO verifications (
			id, tenant_id, claim_id, status, decision_reason, confidence_level,
			confidence_score, auto_approved, requires_human_review,
			requires_monitoring, severity_score, passed_checks, failed_checks, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, r.rebind(insertVerification),
		result.ID, tenantID, result.ClaimID, result.Status,
		result.DecisionReason, result.ConfidenceLevel, result.ConfidenceScore,
		boolToInt(result.AutoApproved), boolToInt(result.RequiresHumanReview),
		boolToInt(result.RequiresMonitoring), result.SeverityScore,
		string(passed), string(failed), result.Timestamp,
	); err != nil {
		return err
	}

	riskFlags, _ := json.Marshal(forensic.RiskFlags)
	insertForensic := `
		INSERT INTO forensic_records (
			claim_id, tenant_id, fraud_probability, risk_flags,
			confidence_score, review_priority, reasoning, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(claim_id, tenant_id) DO UPDATE SET
			fraud_probability = excluded.fraud_probability,
			risk_flags = excluded.risk_flags,
			confidence_score = excluded.confidence_score,
			review_priority = excluded.review_priority,
			reasoning = excluded.reasoning
	`
	if _, err := tx.ExecContext(ctx, r.rebind(insertForensic),
		forensic.ClaimID, tenantID, forensic.FraudProbability, string(riskFlags),
		forensic.ConfidenceScore, forensic.ReviewPriority, forensic.Reasoning,
		time.Now().UTC(),
	); err != nil {
		return err
	}

	updateClaim := `
		UPDATE claims SET status = ?, ai_recommendation = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`
	if _, err := tx.ExecContext(ctx, r.rebind(updateClaim),
		claimStatusForVerdict(result.Status), result.Status, time.Now().UTC(),
		tenantID, result.ClaimID,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// GetVerification retrieves a verification result by ID.
func (r *SQLRepository) GetVerification(ctx context.Context, tenantID string, verificationID string) (*domain.VerificationResult, error) {
	return r.getVerificationWhere(ctx, tenantID, "id = ?", verificationID)
}

// GetVerificationByClaim retrieves the latest verification for a claim.
func (r *SQLRepository) GetVerificationByClaim(ctx context.Context, tenantID string, claimID string) (*domain.VerificationResult, error) {
	return r.getVerificationWhere(ctx, tenantID, "claim_id = ?", claimID)
}

func (r *SQLRepository) getVerificationWhere(ctx context.Context, tenantID, cond, arg string) (*domain.VerificationResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, claim_id, status, decision_reason, confidence_level,
			   confidence_score, auto_approved, requires_human_review,
			   requires_monitoring, severity_score, passed_checks, failed_checks, timestamp
		FROM verifications
		WHERE tenant_id = ? AND ` + cond + `
		ORDER BY timestamp DESC
		LIMIT 1
	`

	var result domain.VerificationResult
	var autoApproved, review, monitoring int
	var passed, failed string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, arg).Scan(
		&result.ID, &result.TenantID, &result.ClaimID, &result.Status,
		&result.DecisionReason, &result.ConfidenceLevel, &result.ConfidenceScore,
		&autoApproved, &review, &monitoring, &result.SeverityScore,
		&passed, &failed, &result.Timestamp,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	result.AutoApproved = autoApproved == 1
	result.RequiresHumanReview = review == 1
	result.RequiresMonitoring = monitoring == 1
	json.Unmarshal([]byte(passed), &result.PassedChecks)
	json.Unmarshal([]byte(failed), &result.FailedChecks)

	return &result, nil
}

// SaveCustomRule upserts a custom rule with tenant isolation.
func (r *SQLRepository) SaveCustomRule(ctx context.Context, tenantID string, rule *domain.CustomRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO custom_rules (
			id, tenant_id, name, description, version, expression, reason,
			severity, phase, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			reason = excluded.reason,
			severity = excluded.severity,
			phase = excluded.phase,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description, rule.Version,
		rule.Expression, rule.Reason, rule.Severity, rule.Phase,
		boolToInt(rule.Enabled), now, now,
	)
	return err
}

// GetCustomRule retrieves the latest enabled version of a custom rule.
func (r *SQLRepository) GetCustomRule(ctx context.Context, tenantID string, ruleID string) (*domain.CustomRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, reason,
			   severity, phase, enabled
		FROM custom_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var rule domain.CustomRule
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID).Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &rule.Description, &rule.Version,
		&rule.Expression, &rule.Reason, &rule.Severity, &rule.Phase, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled == 1
	return &rule, nil
}

// ListCustomRules retrieves all enabled custom rules for a tenant.
func (r *SQLRepository) ListCustomRules(ctx context.Context, tenantID string) ([]*domain.CustomRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, reason,
			   severity, phase, enabled
		FROM custom_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.CustomRule
	for rows.Next() {
		var rule domain.CustomRule
		var enabled int
		if err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Name, &rule.Description, &rule.Version,
			&rule.Expression, &rule.Reason, &rule.Severity, &rule.Phase, &enabled,
		); err != nil {
			return nil, err
		}
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// DeleteCustomRule soft-deletes a custom rule by setting enabled = 0.
func (r *SQLRepository) DeleteCustomRule(ctx context.Context, tenantID string, ruleID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE custom_rules
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func claimStatusForVerdict(verdict domain.VerdictStatus) domain.ClaimStatus {
	switch verdict {
	case domain.VerdictApproved:
		return domain.ClaimApproved
	case domain.VerdictFlagged:
		return domain.ClaimFlagged
	case domain.VerdictRejected:
		return domain.ClaimRejected
	default:
		return domain.ClaimProcessing
	}
}
