package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaPolicies = `
CREATE TABLE IF NOT EXISTS policies (
    policy_number TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    holder_name TEXT,
    vehicle_make TEXT NOT NULL,
    vehicle_model TEXT NOT NULL,
    vehicle_color TEXT,
    vehicle_registration TEXT NOT NULL,
    chase_number TEXT,
    status TEXT NOT NULL,
    start_date TEXT,
    end_date TEXT,
    plan_coverage INTEGER NOT NULL DEFAULT 0,
    location TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (policy_number, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_policies_tenant ON policies(tenant_id);
CREATE INDEX IF NOT EXISTS idx_policies_registration ON policies(tenant_id, vehicle_registration);
`

const schemaClaims = `
CREATE TABLE IF NOT EXISTS claims (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    policy_number TEXT NOT NULL,
    amount INTEGER NOT NULL,
    narrative TEXT,
    incident_location TEXT,
    status TEXT NOT NULL,
    facts TEXT,
    ai_recommendation TEXT,
    estimate_min INTEGER,
    estimate_max INTEGER,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_claims_tenant ON claims(tenant_id);
CREATE INDEX IF NOT EXISTS idx_claims_policy ON claims(tenant_id, policy_number);
CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_claims_created ON claims(tenant_id, created_at);
`

const schemaVerifications = `
CREATE TABLE IF NOT EXISTS verifications (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    claim_id TEXT NOT NULL,
    status TEXT NOT NULL,
    decision_reason TEXT NOT NULL,
    confidence_level TEXT NOT NULL,
    confidence_score REAL NOT NULL,
    auto_approved INTEGER NOT NULL DEFAULT 0,
    requires_human_review INTEGER NOT NULL DEFAULT 0,
    requires_monitoring INTEGER NOT NULL DEFAULT 0,
    severity_score REAL NOT NULL,
    passed_checks TEXT NOT NULL,
    failed_checks TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_verifications_tenant ON verifications(tenant_id);
CREATE INDEX IF NOT EXISTS idx_verifications_claim ON verifications(tenant_id, claim_id);
CREATE INDEX IF NOT EXISTS idx_verifications_status ON verifications(tenant_id, status);
`

// Forensic records are written in the same transaction as the
// verification so a claim can never hold a verdict without forensics.
const schemaForensicRecords = `
CREATE TABLE IF NOT EXISTS forensic_records (
    claim_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    fraud_probability TEXT NOT NULL,
    risk_flags TEXT NOT NULL,
    confidence_score REAL NOT NULL,
    review_priority TEXT NOT NULL,
    reasoning TEXT,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (claim_id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_forensic_tenant ON forensic_records(tenant_id);
CREATE INDEX IF NOT EXISTS idx_forensic_priority ON forensic_records(tenant_id, review_priority);
`

const schemaCustomRules = `
CREATE TABLE IF NOT EXISTS custom_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    reason TEXT NOT NULL,
    severity TEXT NOT NULL,
    phase TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_custom_rules_tenant ON custom_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_custom_rules_enabled ON custom_rules(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaPolicies,
		schemaClaims,
		schemaVerifications,
		schemaForensicRecords,
		schemaCustomRules,
	}
}
