package rules

import (
	"fmt"
	"strings"

	"github.com/autoclaim/kestrel/internal/domain"
)

// Check 1: Image Quality Gate.
//
// Screen recaptures are CRITICAL because they nullify all metadata
// checks. Blur is HIGH since it impairs every downstream extraction.
// Low quality alone is MEDIUM; analysis continues with caution.
func (e *Engine) checkImageQualityGate(in *checkInput) []Outcome {
	forensic := in.Facts.Forensic

	if forensic.IsScreenRecapture || forensic.HasUIElements {
		return []Outcome{fail(
			"SCREEN_RECAPTURE",
			"Image Quality Gate: Screen Recapture",
			"Image appears to be a screen-capture or photo of a screen. "+
				"EXIF metadata is stripped and extraction results are unreliable.",
			domain.SeverityCritical,
			domain.PhaseIntegrity,
		)}
	}

	if forensic.IsBlurry {
		return []Outcome{fail(
			"IMAGE_BLURRY",
			"Image Quality Gate: Blur Detection",
			"Image is excessively blurry. Damage and plate recognition are unreliable.",
			domain.SeverityHigh,
			domain.PhaseIntegrity,
		)}
	}
	if forensic.ImageQuality == domain.QualityLow {
		return []Outcome{fail(
			"IMAGE_LOW_QUALITY",
			"Image Quality Gate: Low Quality",
			"Image quality is low. Extraction results may be inaccurate.",
			domain.SeverityMedium,
			domain.PhaseIntegrity,
		)}
	}
	return []Outcome{pass("IMAGE_QUALITY_OK")}
}

// Check 2: Metadata Verification.
//
// Skipped when the metadata extractor did not run. Missing timestamp is
// HIGH (possible edited image). Missing GPS is only LOW since older
// phones commonly strip it. A GPS fix whose location name fails token
// overlap with the policy location is a MEDIUM mismatch.
func (e *Engine) checkMetadata(in *checkInput) []Outcome {
	exif := in.Facts.EXIF
	if exif == nil {
		return []Outcome{pass("METADATA_NOT_APPLICABLE")}
	}
	var outcomes []Outcome

	if exif.Timestamp == "" {
		outcomes = append(outcomes, fail(
			"METADATA_MISSING",
			"Metadata Verification",
			"No EXIF timestamp; possible screenshot or digitally edited image.",
			domain.SeverityHigh,
			domain.PhaseIntegrity,
		))
	} else {
		outcomes = append(outcomes, pass("METADATA_TIMESTAMP"))
	}

	if exif.GPS.Valid() {
		policyLoc := strings.ToLower(in.Policy.Location)
		detectedLoc := strings.ToLower(exif.LocationName)
		switch {
		case policyLoc != "" && detectedLoc != "" && !locationMatches(policyLoc, detectedLoc):
			outcomes = append(outcomes, fail(
				"GPS_LOCATION_MISMATCH",
				"GPS Location Verification",
				fmt.Sprintf("Location mismatch; policy %q, GPS %q.", policyLoc, detectedLoc),
				domain.SeverityMedium,
				domain.PhaseIntegrity,
			))
		case policyLoc != "" && detectedLoc != "":
			outcomes = append(outcomes, pass("GPS_LOCATION"))
		default:
			outcomes = append(outcomes, pass("GPS_EXISTS"))
		}
	} else {
		outcomes = append(outcomes, fail(
			"GPS_MISSING",
			"GPS Verification",
			"No GPS coordinates in image metadata.",
			domain.SeverityLow,
			domain.PhaseIntegrity,
		))
	}

	return outcomes
}

// Check 3: Reverse Image Search. Detects stock or recycled internet photos.
func (e *Engine) checkReverseImageSearch(in *checkInput) []Outcome {
	likelihood := in.Facts.Authenticity.StockPhotoLikelihood

	for _, level := range e.cfg.StockPhotoRejectLevels {
		if likelihood == level {
			return []Outcome{fail(
				"STOCK_PHOTO_DETECTED",
				"Reverse Image Search",
				fmt.Sprintf("Image highly likely to be a stock/internet photo (likelihood: %s).", likelihood),
				domain.SeverityCritical,
				domain.PhaseIntegrity,
			)}
		}
	}
	if likelihood == domain.StockMedium {
		return []Outcome{fail(
			"STOCK_PHOTO_SUSPICIOUS",
			"Stock Photo Check",
			"Image has stock-photo characteristics; original source unconfirmed.",
			domain.SeverityMedium,
			domain.PhaseIntegrity,
		)}
	}
	return []Outcome{pass("REVERSE_IMAGE_SEARCH")}
}

// Check 4: Digital Forgery Detection. Any manipulation indicator yields a
// single CRITICAL failure listing everything that triggered.
func (e *Engine) checkDigitalForgery(in *checkInput) []Outcome {
	auth := in.Facts.Authenticity
	forensic := in.Facts.Forensic

	var issues []string
	if auth.EditingDetected {
		issues = append(issues, "digital editing detected")
	}
	if !auth.LightingOK() {
		issues = append(issues, "inconsistent lighting")
	}
	if !auth.ShadowsOK() {
		issues = append(issues, "unnatural shadows")
	}
	if !auth.CompressionOK() {
		issues = append(issues, "non-uniform compression artifacts")
	}
	if forensic.MultipleLightSources {
		issues = append(issues, "multiple conflicting light sources")
	}
	if forensic.ShadowsInconsistent {
		issues = append(issues, "shadow direction inconsistency")
	}
	if forensic.HasWatermarks {
		issues = append(issues, "watermarks detected (possible recycled media)")
	}

	if len(issues) > 0 {
		return []Outcome{fail(
			"DIGITAL_MANIPULATION",
			"Digital Forgery Detection",
			fmt.Sprintf("Image manipulation indicators: %s.", strings.Join(issues, ", ")),
			domain.SeverityCritical,
			domain.PhaseIntegrity,
		)}
	}
	return []Outcome{pass("DIGITAL_FORGERY")}
}
