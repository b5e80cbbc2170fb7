package rules

import (
	"fmt"
	"strings"

	"github.com/autoclaim/kestrel/internal/domain"
)

// Check 5: Vehicle Match. Confirms make/model in the image matches the
// insured vehicle. Skipped when the vehicle extractor did not run. The
// confidence failure and the mismatch failure are independent: a
// low-confidence and mismatched detection yields both.
func (e *Engine) checkVehicleMatch(in *checkInput) []Outcome {
	detected := in.Facts.Vehicle
	if detected == nil {
		return []Outcome{pass("VEHICLE_CHECK_NOT_APPLICABLE")}
	}
	policyMake := strings.ToLower(in.Policy.VehicleMake)
	policyModel := strings.ToLower(in.Policy.VehicleModel)
	detectedMake := strings.ToLower(detected.Make)
	detectedModel := strings.ToLower(detected.Model)

	var outcomes []Outcome

	if detected.DetectedConfidence < e.cfg.MinVehicleDetectionConfidence {
		outcomes = append(outcomes, fail(
			"VEHICLE_LOW_CONFIDENCE",
			"Vehicle Detection Confidence",
			fmt.Sprintf("Vehicle ID confidence %.0f%% is below threshold %.0f%%.",
				detected.DetectedConfidence*100, e.cfg.MinVehicleDetectionConfidence*100),
			domain.SeverityMedium,
			domain.PhaseVehicle,
		))
	}

	// An extractor that ran but read no make or model is not a mismatch;
	// only a contradicting read is. A blank policy side still fails.
	makeOK := detectedMake == "" || containsEither(policyMake, detectedMake)
	modelOK := detectedModel == "" || containsEither(policyModel, detectedModel)
	if !makeOK || !modelOK {
		outcomes = append(outcomes, fail(
			"VEHICLE_MISMATCH",
			"Vehicle Match",
			fmt.Sprintf("Vehicle mismatch; policy: %s %s, detected: %s %s.",
				policyMake, policyModel, detectedMake, detectedModel),
			domain.SeverityCritical,
			domain.PhaseVehicle,
		))
	} else {
		outcomes = append(outcomes, pass("VEHICLE_MATCH"))
	}

	// Color detection is approximate, so only MEDIUM.
	policyColor := strings.ToLower(in.Policy.VehicleColor)
	detectedColor := strings.ToLower(detected.Color)
	if policyColor != "" && detectedColor != "" && !containsEither(policyColor, detectedColor) {
		outcomes = append(outcomes, fail(
			"VEHICLE_COLOR_MISMATCH",
			"Vehicle Color Verification",
			fmt.Sprintf("Color mismatch; policy: %s, detected: %s.", policyColor, detectedColor),
			domain.SeverityMedium,
			domain.PhaseVehicle,
		))
	}

	return outcomes
}

// Check 6: License Plate Match. Strict exact OCR match against the policy
// registration after normalization (upper-case, spaces and dashes
// removed). Skipped when OCR did not run; an OCR run that found no plate
// text is a failure, not a skip.
func (e *Engine) checkLicensePlate(in *checkInput) []Outcome {
	ocr := in.Facts.OCR
	if ocr == nil {
		return []Outcome{pass("PLATE_CHECK_NOT_APPLICABLE")}
	}
	ocrPlate := normalizePlate(ocr.PlateText)
	policyPlate := normalizePlate(in.Policy.VehicleRegistration)

	if ocrPlate == "" {
		severity := domain.SeverityHigh
		reason := "License plate not visible or unreadable."
		if in.Facts.Vehicle != nil && in.Facts.Vehicle.LicensePlateObscured {
			severity = domain.SeverityMedium
			reason = "License plate not visible or unreadable (plate may be obscured)."
		}
		return []Outcome{fail(
			"PLATE_NOT_DETECTED",
			"License Plate Detection",
			reason,
			severity,
			domain.PhaseVehicle,
		)}
	}

	var outcomes []Outcome
	if ocr.Confidence < e.cfg.MinOCRPlateConfidence {
		outcomes = append(outcomes, fail(
			"PLATE_LOW_CONFIDENCE",
			"License Plate OCR Confidence",
			fmt.Sprintf("OCR confidence %.0f%% below threshold %.0f%%.",
				ocr.Confidence*100, e.cfg.MinOCRPlateConfidence*100),
			domain.SeverityMedium,
			domain.PhaseVehicle,
		))
	}

	if policyPlate != "" && ocrPlate != policyPlate {
		outcomes = append(outcomes, fail(
			"PLATE_MISMATCH",
			"License Plate Verification",
			fmt.Sprintf("Plate mismatch; policy: %s, OCR: %s.", policyPlate, ocrPlate),
			domain.SeverityCritical,
			domain.PhaseVehicle,
		))
	} else {
		outcomes = append(outcomes, pass("LICENSE_PLATE"))
	}
	return outcomes
}

// Check 7: Chase Number (VIN) Verification. Absent chase number passes;
// it is optional input.
func (e *Engine) checkChaseNumber(in *checkInput) []Outcome {
	ocr := in.Facts.OCR
	if ocr == nil {
		return []Outcome{pass("CHASE_NUMBER_NOT_PROVIDED")}
	}
	ocrChase := strings.ToUpper(strings.TrimSpace(ocr.ChaseNumber))
	policyChase := strings.ToUpper(strings.TrimSpace(in.Policy.ChaseNumber))

	if ocrChase == "" {
		return []Outcome{pass("CHASE_NUMBER_NOT_PROVIDED")}
	}

	var outcomes []Outcome
	if ocr.ChaseNumberConfidence < e.cfg.MinChaseNumberConfidence {
		outcomes = append(outcomes, fail(
			"CHASE_NUMBER_LOW_CONFIDENCE",
			"Chase Number OCR Confidence",
			fmt.Sprintf("Chase number OCR confidence %.0f%% below threshold %.0f%%.",
				ocr.ChaseNumberConfidence*100, e.cfg.MinChaseNumberConfidence*100),
			domain.SeverityMedium,
			domain.PhaseVehicle,
		))
	}

	if policyChase != "" && ocrChase != policyChase {
		outcomes = append(outcomes, fail(
			"CHASE_NUMBER_MISMATCH",
			"Chase Number Verification",
			fmt.Sprintf("Chase number mismatch; policy: %s, OCR: %s.", policyChase, ocrChase),
			domain.SeverityHigh,
			domain.PhaseVehicle,
		))
	} else {
		outcomes = append(outcomes, pass("CHASE_NUMBER_MATCH"))
	}
	return outcomes
}

// Check 8: Pre-Existing Damage. Rust, faded paint, accumulated dirt or
// old repairs indicate damage that predates the claimed incident.
func (e *Engine) checkPreExistingDamage(in *checkInput) []Outcome {
	pre := in.Facts.PreExisting

	var indicators []string
	if pre.RustDetected {
		indicators = append(indicators, "rust in damaged area")
	}
	if pre.PaintFading {
		indicators = append(indicators, "paint fading around damage")
	}
	if pre.DirtAccumulation {
		indicators = append(indicators, "accumulated dirt in damage")
	}
	if pre.OldRepairsVisible {
		indicators = append(indicators, "evidence of previous repairs")
	}

	if len(indicators) > 0 {
		return []Outcome{fail(
			"PRE_EXISTING_DAMAGE",
			"Pre-Existing Damage Detection",
			fmt.Sprintf("Pre-existing damage indicators: %s.", strings.Join(indicators, ", ")),
			domain.SeverityHigh,
			domain.PhaseVehicle,
		)}
	}
	return []Outcome{pass("PRE_EXISTING_DAMAGE")}
}

// Check 9: Detector vs Extractor Damage Corroboration.
//
// Cross-validates the object detector against the vision-language damage
// assessment, catching cases where only one pipeline was fed manipulated
// images. A severity gap of two or more bands carries a flat extra
// penalty on top of the MEDIUM weight. The double penalty is intentional:
// corroboration gaps compound other signals.
func (e *Engine) checkDamageCorroboration(in *checkInput) []Outcome {
	detector := in.Facts.Detector
	damage := in.Facts.Damage

	// If either pipeline did not run, skip.
	if detector == nil || detector.DamageDetected == nil || damage.DamageDetected == nil {
		return []Outcome{pass("DETECTOR_CORROBORATION_SKIPPED")}
	}

	if *detector.DamageDetected != *damage.DamageDetected {
		return []Outcome{fail(
			"DETECTOR_DAMAGE_DISAGREEMENT",
			"Detector vs Extractor Damage Corroboration",
			fmt.Sprintf("Detector damage_detected=%t contradicts extractor damage_detected=%t. "+
				"Possible image spoofing between analysis stages.",
				*detector.DamageDetected, *damage.DamageDetected),
			domain.SeverityHigh,
			domain.PhaseVehicle,
		)}
	}

	gap := detector.Severity.Rank() - damage.Severity.Rank()
	if gap < 0 {
		gap = -gap
	}
	if gap >= 2 {
		o := fail(
			"DETECTOR_SEVERITY_GAP",
			"Detector vs Extractor Severity Gap",
			fmt.Sprintf("Severity discrepancy: detector=%s, extractor=%s. Gap of %d bands.",
				detector.Severity, damage.Severity, gap),
			domain.SeverityMedium,
			domain.PhaseVehicle,
		)
		o.Penalty = e.cfg.SeverityMismatchPenalty
		return []Outcome{o}
	}
	return []Outcome{pass("DETECTOR_CORROBORATED")}
}

// Check 10: Totalled-Vehicle Physical Markers. A "totaled" assessment
// with no airbag deployment, fluid leaks or missing parts suggests
// severity inflation. Non-totaled severities pass as not applicable.
func (e *Engine) checkTotaledMarkers(in *checkInput) []Outcome {
	damage := in.Facts.Damage

	if damage.Severity != domain.SeverityTotaled {
		return []Outcome{pass("TOTAL_VEHICLE_CHECK_NA")}
	}

	if damage.AirbagsDeployed || damage.FluidLeaksVisible || damage.PartsMissing {
		return []Outcome{pass("TOTALED_MARKERS_PRESENT")}
	}
	return []Outcome{fail(
		"TOTALED_NO_PHYSICAL_MARKERS",
		"Totalled Vehicle Physical Marker Check",
		"Claim severity assessed as totaled but no physical markers "+
			"(airbag deployment, fluid leaks, missing parts) are visible. "+
			"Possible severity inflation.",
		domain.SeverityHigh,
		domain.PhaseVehicle,
	)}
}
