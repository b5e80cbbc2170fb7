package rules

import (
	"testing"
	"time"

	"github.com/autoclaim/kestrel/internal/domain"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	eng := NewEngine(domain.DefaultRuleConfig())
	eng.now = func() time.Time { return testNow }
	return eng
}

func boolPtr(b bool) *bool    { return &b }
func int64Ptr(n int64) *int64 { return &n }

func testPolicy() *domain.PolicyRecord {
	return &domain.PolicyRecord{
		PolicyNumber:        "POL-2026-001",
		VehicleMake:         "Maruti",
		VehicleModel:        "Swift",
		VehicleColor:        "white",
		VehicleRegistration: "KL-07-CU-7475",
		ChaseNumber:         "MA3EYD32S00123456",
		Status:              domain.PolicyActive,
		StartDate:           "2026-01-01",
		EndDate:             "2026-12-31",
		PlanCoverage:        100_000,
		Location:            "Kochi",
	}
}

// cleanFacts returns a bundle that passes every check against testPolicy.
func cleanFacts() *domain.FactBundle {
	return &domain.FactBundle{
		EXIF: &domain.EXIFMetadata{
			Timestamp:    "2026-03-14 09:30:00",
			GPS:          &domain.GPSFix{Latitude: 9.9312, Longitude: 76.2673},
			LocationName: "Kochi, Kerala",
		},
		OCR: &domain.OCRData{
			PlateText:             "KL07CU7475",
			Confidence:            0.95,
			ChaseNumber:           "MA3EYD32S00123456",
			ChaseNumberConfidence: 0.92,
		},
		Vehicle: &domain.VehicleIdentification{
			Make:               "Maruti",
			Model:              "Swift",
			Color:              "white",
			DetectedConfidence: 0.95,
		},
		Damage: &domain.DamageAssessment{
			DamageDetected: boolPtr(true),
			Severity:       domain.SeverityMinor,
			DamagedPanels:  []string{"front_bumper"},
			CostMin:        int64Ptr(10_000),
			CostMax:        int64Ptr(30_000),
		},
		Narrative: &domain.NarrativeConsistency{VisualEvidenceMatches: true},
	}
}

func failedIDs(r *domain.VerificationResult) []string {
	ids := make([]string, len(r.FailedChecks))
	for i, f := range r.FailedChecks {
		ids[i] = f.RuleID
	}
	return ids
}

func hasFailure(r *domain.VerificationResult, ruleID string) bool {
	for _, f := range r.FailedChecks {
		if f.RuleID == ruleID {
			return true
		}
	}
	return false
}

func hasPass(r *domain.VerificationResult, ruleID string) bool {
	for _, id := range r.PassedChecks {
		if id == ruleID {
			return true
		}
	}
	return false
}

func TestVerifyClaimAllChecksPass(t *testing.T) {
	eng := newTestEngine()

	result, err := eng.VerifyClaim(15_000, cleanFacts(), testPolicy(), nil)
	if err != nil {
		t.Fatalf("VerifyClaim failed: %v", err)
	}

	if result.Status != domain.VerdictApproved {
		t.Errorf("expected APPROVED, got %s (failed: %v)", result.Status, failedIDs(result))
	}
	if !result.AutoApproved {
		t.Error("expected auto_approved=true")
	}
	if result.RequiresHumanReview || result.RequiresMonitoring {
		t.Error("clean claim should need neither review nor monitoring")
	}
	if result.ConfidenceLevel != domain.ConfidenceHigh {
		t.Errorf("expected HIGH confidence level, got %s", result.ConfidenceLevel)
	}
	if result.ConfidenceScore != 100 {
		t.Errorf("expected confidence 100, got %f", result.ConfidenceScore)
	}
	if result.SeverityScore != 0 {
		t.Errorf("expected severity score 0, got %f", result.SeverityScore)
	}
	if len(result.FailedChecks) != 0 {
		t.Errorf("expected no failures, got %v", failedIDs(result))
	}
}

func TestVerifyClaimEmptyFacts(t *testing.T) {
	// Absent provider sections are not-applicable, not suspicious.
	eng := newTestEngine()

	result, err := eng.VerifyClaim(0, nil, testPolicy(), nil)
	if err != nil {
		t.Fatalf("VerifyClaim failed: %v", err)
	}

	if result.Status != domain.VerdictApproved {
		t.Errorf("expected APPROVED for default facts, got %s (failed: %v)",
			result.Status, failedIDs(result))
	}
	if !result.AutoApproved {
		t.Error("expected auto_approved=true")
	}
	for _, f := range result.FailedChecks {
		if f.Severity != domain.SeverityLow {
			t.Errorf("only LOW failures allowed for default facts, got %s (%s)", f.Severity, f.RuleID)
		}
	}
}

func TestVerifyClaimMissingPolicy(t *testing.T) {
	eng := newTestEngine()

	if _, err := eng.VerifyClaim(1000, cleanFacts(), nil, nil); err != domain.ErrMissingPolicy {
		t.Fatalf("expected ErrMissingPolicy, got %v", err)
	}
}

func TestScreenRecaptureShortCircuitsPhaseA(t *testing.T) {
	eng := newTestEngine()
	facts := cleanFacts()
	facts.Forensic = &domain.ForensicIndicators{IsScreenRecapture: true}
	// Would fire CRITICAL in checks 3 and 4 if phase A did not short-circuit.
	facts.Authenticity = &domain.AuthenticityIndicators{
		StockPhotoLikelihood: domain.StockVeryHigh,
		EditingDetected:      true,
	}

	result, err := eng.VerifyClaim(15_000, facts, testPolicy(), nil)
	if err != nil {
		t.Fatalf("VerifyClaim failed: %v", err)
	}

	if result.Status != domain.VerdictRejected {
		t.Errorf("expected REJECTED, got %s", result.Status)
	}
	phaseAFailures := 0
	for _, f := range result.FailedChecks {
		if f.Phase == domain.PhaseIntegrity {
			phaseAFailures++
			if f.RuleID != "SCREEN_RECAPTURE" {
				t.Errorf("unexpected phase A failure after short-circuit: %s", f.RuleID)
			}
		}
	}
	if phaseAFailures != 1 {
		t.Errorf("expected exactly one phase A failure, got %d", phaseAFailures)
	}
	if hasPass(result, "REVERSE_IMAGE_SEARCH") || hasFailure(result, "STOCK_PHOTO_DETECTED") {
		t.Error("stock photo check must not run after screen recapture")
	}
}

func TestPlateNormalization(t *testing.T) {
	// OCR "KL07CU7475" vs policy "KL-07-CU-7475" must compare equal.
	eng := newTestEngine()

	result, err := eng.VerifyClaim(15_000, cleanFacts(), testPolicy(), nil)
	if err != nil {
		t.Fatalf("VerifyClaim failed: %v", err)
	}

	if !hasPass(result, "LICENSE_PLATE") {
		t.Errorf("expected LICENSE_PLATE pass, failed: %v", failedIDs(result))
	}
	if hasFailure(result, "PLATE_MISMATCH") {
		t.Error("normalized plates must not mismatch")
	}
}

func TestPlateMismatchIsCritical(t *testing.T) {
	eng := newTestEngine()
	facts := cleanFacts()
	facts.OCR.PlateText = "MH12AB1234"

	result, err := eng.VerifyClaim(15_000, facts, testPolicy(), nil)
	if err != nil {
		t.Fatalf("VerifyClaim failed: %v", err)
	}

	if result.Status != domain.VerdictRejected {
		t.Errorf("expected REJECTED on plate mismatch, got %s", result.Status)
	}
	if !hasFailure(result, "PLATE_MISMATCH") {
		t.Errorf("expected PLATE_MISMATCH, failed: %v", failedIDs(result))
	}
}

func TestNoDamageButClaimSubmitted(t *testing.T) {
	eng := newTestEngine()
	facts := cleanFacts()
	facts.Damage = &domain.DamageAssessment{
		DamageDetected: boolPtr(false),
		Severity:       domain.SeverityNone,
	}

	result, err := eng.VerifyClaim(15_000, facts, testPolicy(), nil)
	if err != nil {
		t.Fatalf("VerifyClaim failed: %v", err)
	}

	if !hasFailure(result, "CLAIM_NO_DAMAGE_DETECTED") {
		t.Errorf("expected CLAIM_NO_DAMAGE_DETECTED, failed: %v", failedIDs(result))
	}
	if result.Status != domain.VerdictRejected {
		t.Errorf("expected REJECTED, got %s", result.Status)
	}
}

func TestExpiredPolicyRejected(t *testing.T) {
	eng := newTestEngine()
	policy := testPolicy()
	policy.Status = domain.PolicyExpired
	policy.EndDate = "2026-02-01"

	result, err := eng.VerifyClaim(15_000, cleanFacts(), policy, nil)
	if err != nil {
		t.Fatalf("VerifyClaim failed: %v", err)
	}

	if result.Status != domain.VerdictRejected {
		t.Errorf("expected REJECTED, got %s", result.Status)
	}
	if !hasFailure(result, "POLICY_INACTIVE") {
		t.Error("expected POLICY_INACTIVE failure")
	}
	if !hasFailure(result, "POLICY_EXPIRED_OR_NOT_STARTED") {
		t.Error("expected POLICY_EXPIRED_OR_NOT_STARTED failure")
	}
}

func TestPolicyCheckRecordsThreeOutcomes(t *testing.T) {
	eng := newTestEngine()
	policy := testPolicy()
	policy.PlanCoverage = 10_000

	result, err := eng.VerifyClaim(15_000, cleanFacts(), policy, nil)
	if err != nil {
		t.Fatalf("VerifyClaim failed: %v", err)
	}

	if !hasPass(result, "POLICY_ACTIVE") {
		t.Error("expected POLICY_ACTIVE pass")
	}
	if !hasPass(result, "POLICY_DATE_WINDOW") {
		t.Error("expected POLICY_DATE_WINDOW pass")
	}
	if !hasFailure(result, "CLAIM_EXCEEDS_COVERAGE") {
		t.Errorf("expected CLAIM_EXCEEDS_COVERAGE, failed: %v", failedIDs(result))
	}
}

func TestVehicleConfidenceAndMismatchAreIndependent(t *testing.T) {
	eng := newTestEngine()
	facts := cleanFacts()
	facts.Vehicle.Make = "Honda"
	facts.Vehicle.Model = "City"
	facts.Vehicle.DetectedConfidence = 0.50

	result, err := eng.VerifyClaim(15_000, facts, testPolicy(), nil)
	if err != nil {
		t.Fatalf("VerifyClaim failed: %v", err)
	}

	if !hasFailure(result, "VEHICLE_LOW_CONFIDENCE") {
		t.Error("expected VEHICLE_LOW_CONFIDENCE failure")
	}
	if !hasFailure(result, "VEHICLE_MISMATCH") {
		t.Error("expected VEHICLE_MISMATCH failure")
	}
}

func TestVehicleUnreadableMakeModelIsNotMismatch(t *testing.T) {
	eng := newTestEngine()

	t.Run("blank detected make and model", func(t *testing.T) {
		facts := cleanFacts()
		facts.Vehicle.Make = ""
		facts.Vehicle.Model = ""

		result, err := eng.VerifyClaim(15_000, facts, testPolicy(), nil)
		if err != nil {
			t.Fatalf("VerifyClaim failed: %v", err)
		}

		if hasFailure(result, "VEHICLE_MISMATCH") {
			t.Error("unreadable make/model must not count as a mismatch")
		}
		if !hasPass(result, "VEHICLE_MATCH") {
			t.Errorf("expected VEHICLE_MATCH pass, failed: %v", failedIDs(result))
		}
	})

	t.Run("blank policy make still fails", func(t *testing.T) {
		policy := testPolicy()
		policy.VehicleMake = ""

		result, err := eng.VerifyClaim(15_000, cleanFacts(), testPolicy(), nil)
		if err != nil {
			t.Fatalf("VerifyClaim failed: %v", err)
		}
		if hasFailure(result, "VEHICLE_MISMATCH") {
			t.Errorf("populated policy should match clean facts, failed: %v", failedIDs(result))
		}

		result, err = eng.VerifyClaim(15_000, cleanFacts(), policy, nil)
		if err != nil {
			t.Fatalf("VerifyClaim failed: %v", err)
		}
		if !hasFailure(result, "VEHICLE_MISMATCH") {
			t.Error("expected VEHICLE_MISMATCH when the policy has no make on record")
		}
	})
}

func TestCorroborationGapDoublePenalty(t *testing.T) {
	// The severity gap adds a flat penalty on top of the MEDIUM weight.
	// This double penalty is deliberate.
	eng := newTestEngine()
	facts := cleanFacts()
	facts.Detector = &domain.DetectorResults{
		DamageDetected: boolPtr(true),
		Severity:       domain.SeveritySevere,
	}

	result, err := eng.VerifyClaim(15_000, facts, testPolicy(), nil)
	if err != nil {
		t.Fatalf("VerifyClaim failed: %v", err)
	}

	if !hasFailure(result, "DETECTOR_SEVERITY_GAP") {
		t.Fatalf("expected DETECTOR_SEVERITY_GAP, failed: %v", failedIDs(result))
	}
	cfg := eng.Config()
	want := cfg.Weight(domain.SeverityMedium) + cfg.SeverityMismatchPenalty
	if result.SeverityScore != want {
		t.Errorf("expected severity score %f (weight + flat penalty), got %f",
			want, result.SeverityScore)
	}
	if result.Status != domain.VerdictFlagged {
		t.Errorf("expected FLAGGED, got %s", result.Status)
	}
}

func TestCorroborationSkippedWhenDetectorAbsent(t *testing.T) {
	eng := newTestEngine()

	result, err := eng.VerifyClaim(15_000, cleanFacts(), testPolicy(), nil)
	if err != nil {
		t.Fatalf("VerifyClaim failed: %v", err)
	}

	if !hasPass(result, "DETECTOR_CORROBORATION_SKIPPED") {
		t.Error("expected corroboration skip when detector did not run")
	}
}

func TestTotaledWithoutMarkers(t *testing.T) {
	eng := newTestEngine()
	facts := cleanFacts()
	facts.Damage.Severity = domain.SeverityTotaled
	facts.Damage.CostMin = int64Ptr(400_000)
	facts.Damage.CostMax = int64Ptr(900_000)

	result, err := eng.VerifyClaim(15_000, facts, testPolicy(), nil)
	if err != nil {
		t.Fatalf("VerifyClaim failed: %v", err)
	}
	if !hasFailure(result, "TOTALED_NO_PHYSICAL_MARKERS") {
		t.Errorf("expected TOTALED_NO_PHYSICAL_MARKERS, failed: %v", failedIDs(result))
	}

	facts.Damage.AirbagsDeployed = true
	result, err = eng.VerifyClaim(15_000, facts, testPolicy(), nil)
	if err != nil {
		t.Fatalf("VerifyClaim failed: %v", err)
	}
	if !hasPass(result, "TOTALED_MARKERS_PRESENT") {
		t.Error("expected TOTALED_MARKERS_PRESENT with airbags deployed")
	}
}

func TestCompoundingMultiplier(t *testing.T) {
	eng := newTestEngine()
	cfg := eng.Config()
	highWeight := cfg.Weight(domain.SeverityHigh)

	// Exactly at the threshold: three HIGH failures compound.
	t.Run("at threshold", func(t *testing.T) {
		facts := cleanFacts()
		facts.Forensic = &domain.ForensicIndicators{IsBlurry: true}
		facts.PreExisting = &domain.PreExistingIndicators{RustDetected: true}
		facts.Narrative = &domain.NarrativeConsistency{VisualEvidenceMatches: false}

		result, err := eng.VerifyClaim(15_000, facts, testPolicy(), nil)
		if err != nil {
			t.Fatalf("VerifyClaim failed: %v", err)
		}
		if got := len(result.FailedChecks); got != 3 {
			t.Fatalf("expected 3 failures, got %d: %v", got, failedIDs(result))
		}
		want := 3 * highWeight * cfg.CompoundMultiplier
		if result.SeverityScore != want {
			t.Errorf("expected compounded score %f, got %f", want, result.SeverityScore)
		}
		if result.Status != domain.VerdictRejected {
			t.Errorf("expected REJECTED, got %s", result.Status)
		}
	})

	// One below the threshold: raw score unchanged.
	t.Run("below threshold", func(t *testing.T) {
		facts := cleanFacts()
		facts.Forensic = &domain.ForensicIndicators{IsBlurry: true}
		facts.PreExisting = &domain.PreExistingIndicators{RustDetected: true}

		result, err := eng.VerifyClaim(15_000, facts, testPolicy(), nil)
		if err != nil {
			t.Fatalf("VerifyClaim failed: %v", err)
		}
		if got := len(result.FailedChecks); got != 2 {
			t.Fatalf("expected 2 failures, got %d: %v", got, failedIDs(result))
		}
		if want := 2 * highWeight; result.SeverityScore != want {
			t.Errorf("expected raw score %f, got %f", want, result.SeverityScore)
		}
	})
}

func TestDuplicateGuardBothConditionsFire(t *testing.T) {
	eng := newTestEngine()
	history := []domain.ClaimHistoryEntry{
		{
			ClaimID:             "CLM-100",
			Status:              domain.ClaimProcessing,
			CreatedAt:           testNow.AddDate(0, 0, -60),
			VehicleRegistration: "TN-09-XY-0001",
		},
		{
			ClaimID:             "CLM-101",
			Status:              domain.ClaimApproved,
			CreatedAt:           testNow.AddDate(0, 0, -10),
			VehicleRegistration: "KL07CU7475",
		},
	}

	result, err := eng.VerifyClaim(15_000, cleanFacts(), testPolicy(), history)
	if err != nil {
		t.Fatalf("VerifyClaim failed: %v", err)
	}

	if !hasFailure(result, "DUPLICATE_OPEN_CLAIM") {
		t.Error("expected DUPLICATE_OPEN_CLAIM for processing claim")
	}
	if !hasFailure(result, "DUPLICATE_PLATE_RECENT") {
		t.Error("expected DUPLICATE_PLATE_RECENT for recent same-plate claim")
	}
}

func TestDuplicateGuardIgnoresOldAndRejected(t *testing.T) {
	eng := newTestEngine()
	history := []domain.ClaimHistoryEntry{
		{
			ClaimID:             "CLM-90",
			Status:              domain.ClaimApproved,
			CreatedAt:           testNow.AddDate(0, 0, -90),
			VehicleRegistration: "KL07CU7475",
		},
		{
			ClaimID:             "CLM-91",
			Status:              domain.ClaimRejected,
			CreatedAt:           testNow.AddDate(0, 0, -5),
			VehicleRegistration: "KL07CU7475",
		},
	}

	result, err := eng.VerifyClaim(15_000, cleanFacts(), testPolicy(), history)
	if err != nil {
		t.Fatalf("VerifyClaim failed: %v", err)
	}

	if !hasPass(result, "NO_DUPLICATE_CLAIMS") {
		t.Errorf("expected NO_DUPLICATE_CLAIMS, failed: %v", failedIDs(result))
	}
}

func TestConfidenceBounds(t *testing.T) {
	eng := newTestEngine()

	// Pathological bundle: nearly every check fails.
	facts := &domain.FactBundle{
		EXIF: &domain.EXIFMetadata{},
		OCR:  &domain.OCRData{PlateText: "XX00XX0000", Confidence: 0.1},
		Vehicle: &domain.VehicleIdentification{
			Make: "Tata", Model: "Nexon", Color: "red", DetectedConfidence: 0.1,
		},
		Authenticity: &domain.AuthenticityIndicators{
			StockPhotoLikelihood: domain.StockVeryHigh,
			EditingDetected:      true,
		},
		Damage:      &domain.DamageAssessment{DamageDetected: boolPtr(false), Severity: domain.SeverityNone},
		PreExisting: &domain.PreExistingIndicators{RustDetected: true, OldRepairsVisible: true},
		Narrative:   &domain.NarrativeConsistency{VisualEvidenceMatches: false},
		MultiImage:  &domain.MultiImageAnalysis{PlatesConsistent: boolPtr(false)},
	}
	policy := testPolicy()
	policy.Status = domain.PolicyCancelled
	policy.PlanCoverage = 1000

	result, err := eng.VerifyClaim(5_000_000, facts, policy, nil)
	if err != nil {
		t.Fatalf("VerifyClaim failed: %v", err)
	}

	if result.ConfidenceScore < 0 || result.ConfidenceScore > 100 {
		t.Errorf("confidence score out of bounds: %f", result.ConfidenceScore)
	}
	if result.Status != domain.VerdictRejected {
		t.Errorf("expected REJECTED, got %s", result.Status)
	}
}

func TestLowSeverityResidueApprovedWithMonitoring(t *testing.T) {
	eng := newTestEngine()
	facts := cleanFacts()
	facts.EXIF.GPS = nil // GPS_MISSING is the only (LOW) failure

	result, err := eng.VerifyClaim(15_000, facts, testPolicy(), nil)
	if err != nil {
		t.Fatalf("VerifyClaim failed: %v", err)
	}

	if result.Status != domain.VerdictApproved {
		t.Errorf("expected APPROVED, got %s (failed: %v)", result.Status, failedIDs(result))
	}
	if !result.RequiresMonitoring {
		t.Error("expected requires_monitoring=true for LOW residue")
	}
	if !result.AutoApproved {
		t.Error("expected auto_approved=true")
	}
	if result.ConfidenceLevel != domain.ConfidenceMedium {
		t.Errorf("expected MEDIUM confidence level, got %s", result.ConfidenceLevel)
	}
}

func TestVerifyClaimDeterministic(t *testing.T) {
	eng := newTestEngine()
	facts := cleanFacts()
	facts.Forensic = &domain.ForensicIndicators{IsBlurry: true}

	first, err := eng.VerifyClaim(25_000, facts, testPolicy(), nil)
	if err != nil {
		t.Fatalf("VerifyClaim failed: %v", err)
	}
	second, err := eng.VerifyClaim(25_000, facts, testPolicy(), nil)
	if err != nil {
		t.Fatalf("VerifyClaim failed: %v", err)
	}

	if first.Status != second.Status ||
		first.SeverityScore != second.SeverityScore ||
		first.ConfidenceScore != second.ConfidenceScore ||
		len(first.PassedChecks) != len(second.PassedChecks) ||
		len(first.FailedChecks) != len(second.FailedChecks) {
		t.Error("identical inputs must produce identical results")
	}
	for i, id := range first.PassedChecks {
		if second.PassedChecks[i] != id {
			t.Errorf("pass order differs at %d: %s vs %s", i, id, second.PassedChecks[i])
		}
	}
}

func TestInputsNotMutated(t *testing.T) {
	eng := newTestEngine()
	facts := &domain.FactBundle{
		Forensic: &domain.ForensicIndicators{RustPresent: true},
	}

	if _, err := eng.VerifyClaim(0, facts, testPolicy(), nil); err != nil {
		t.Fatalf("VerifyClaim failed: %v", err)
	}

	if facts.PreExisting != nil {
		t.Error("engine must not materialize sections on the caller's bundle")
	}
	if facts.Authenticity != nil || facts.Damage != nil {
		t.Error("engine must not mutate the caller's bundle")
	}
}

func TestLocationMatching(t *testing.T) {
	cases := []struct {
		name string
		a, b string
		want bool
	}{
		{"shared token", "Kochi, Kerala", "kochi", true},
		{"stopwords only", "at the of", "in near and", false},
		{"no overlap", "Mumbai", "Chennai", false},
		{"comma separated", "Ernakulam,Kochi", "Kochi", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := locationMatches(tc.a, tc.b); got != tc.want {
				t.Errorf("locationMatches(%q, %q) = %t, want %t", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestAddingFailuresNeverSoftensVerdict(t *testing.T) {
	// Folding one more failure onto any base bundle must not lower the
	// severity score or improve the verdict.
	eng := newTestEngine()
	rank := map[domain.VerdictStatus]int{
		domain.VerdictApproved: 0,
		domain.VerdictFlagged:  1,
		domain.VerdictRejected: 2,
	}

	variants := []struct {
		name  string
		facts func() *domain.FactBundle
	}{
		{"clean", cleanFacts},
		{"one medium failure", func() *domain.FactBundle {
			f := cleanFacts()
			f.OCR.Confidence = 0.5
			return f
		}},
		{"two high failures", func() *domain.FactBundle {
			f := cleanFacts()
			f.Forensic = &domain.ForensicIndicators{IsBlurry: true}
			f.PreExisting = &domain.PreExistingIndicators{RustDetected: true}
			return f
		}},
	}
	severities := []domain.Severity{
		domain.SeverityLow, domain.SeverityMedium,
		domain.SeverityHigh, domain.SeverityCritical,
	}

	for _, v := range variants {
		for _, sev := range severities {
			t.Run(v.name+"/"+string(sev), func(t *testing.T) {
				base, err := eng.VerifyClaim(15_000, v.facts(), testPolicy(), nil)
				if err != nil {
					t.Fatalf("VerifyClaim failed: %v", err)
				}

				extra := []Outcome{fail(
					"EXTRA_SIGNAL", "Extra Signal", "Synthetic failure.",
					sev, domain.PhaseFinancial,
				)}
				with, err := eng.VerifyClaimWithExtras(15_000, v.facts(), testPolicy(), nil, extra)
				if err != nil {
					t.Fatalf("VerifyClaimWithExtras failed: %v", err)
				}

				if with.SeverityScore < base.SeverityScore {
					t.Errorf("severity score dropped from %f to %f after adding a %s failure",
						base.SeverityScore, with.SeverityScore, sev)
				}
				if rank[with.Status] < rank[base.Status] {
					t.Errorf("verdict improved from %s to %s after adding a %s failure",
						base.Status, with.Status, sev)
				}
			})
		}
	}
}
