package domain

// RuleConfig holds every tunable threshold and weight used by the
// verification engine. Constructed once at engine creation and never
// mutated during a run, so a config can be swapped per deployment or per
// test without touching check logic.
type RuleConfig struct {
	// Amount threshold (whole rupees)
	AutoApprovalAmountThreshold int64 `json:"autoApprovalAmountThreshold"`

	// Confidence minimums
	MinVehicleDetectionConfidence float64 `json:"minVehicleDetectionConfidence"`
	MinOCRPlateConfidence         float64 `json:"minOcrPlateConfidence"`
	MinChaseNumberConfidence      float64 `json:"minChaseNumberConfidence"`

	// Severity weights feeding the raw score
	SeverityWeights map[Severity]float64 `json:"severityWeights"`

	// Decision thresholds
	AutoRejectScoreThreshold    float64 `json:"autoRejectScoreThreshold"`
	FlagForReviewScoreThreshold float64 `json:"flagForReviewScoreThreshold"`

	// Stock-photo likelihood bands that trigger a CRITICAL failure
	StockPhotoRejectLevels []StockPhotoLikelihood `json:"stockPhotoRejectLevels"`

	// Damage-cost sanity
	MaxClaimToEstimateRatio float64 `json:"maxClaimToEstimateRatio"`

	// Flat raw-score penalty added on a detector/extractor severity gap,
	// on top of the MEDIUM failure weight. Intentional double penalty.
	SeverityMismatchPenalty float64 `json:"severityMismatchPenalty"`

	// Duplicate guard window
	DuplicateClaimWindowDays int `json:"duplicateClaimWindowDays"`

	// Compounding multiplier for clustered severe failures
	CompoundFailureThreshold int     `json:"compoundFailureThreshold"`
	CompoundMultiplier       float64 `json:"compoundMultiplier"`
}

// DefaultRuleConfig returns the production thresholds.
func DefaultRuleConfig() *RuleConfig {
	return &RuleConfig{
		AutoApprovalAmountThreshold:   20_000,
		MinVehicleDetectionConfidence: 0.85,
		MinOCRPlateConfidence:         0.80,
		MinChaseNumberConfidence:      0.75,
		SeverityWeights: map[Severity]float64{
			SeverityCritical: 10,
			SeverityHigh:     5,
			SeverityMedium:   2,
			SeverityLow:      1,
		},
		AutoRejectScoreThreshold:    10,
		FlagForReviewScoreThreshold: 2,
		StockPhotoRejectLevels:      []StockPhotoLikelihood{StockHigh, StockVeryHigh},
		MaxClaimToEstimateRatio:     2.0,
		SeverityMismatchPenalty:     3,
		DuplicateClaimWindowDays:    30,
		CompoundFailureThreshold:    3,
		CompoundMultiplier:          1.5,
	}
}

// Weight returns the raw-score weight for a severity (0 for unknown).
func (c *RuleConfig) Weight(s Severity) float64 {
	return c.SeverityWeights[s]
}

// CustomRule is an operator-defined supplemental rule evaluated with CEL
// after the built-in checks. When the expression evaluates true the rule
// contributes a FailedRule with the configured severity; otherwise it
// records a pass under its ID.
type CustomRule struct {
	ID          string   `json:"id"`
	TenantID    string   `json:"tenantId,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Version     string   `json:"version"`
	Expression  string   `json:"expression"` // CEL, must return bool
	Reason      string   `json:"reason"`
	Severity    Severity `json:"severity"`
	Phase       Phase    `json:"phase"`
	Enabled     bool     `json:"enabled"`
}
