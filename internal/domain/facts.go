package domain

import (
	"time"

	"github.com/golang/geo/s2"
)

// DamageSeverity is the severity band reported by a damage pipeline.
type DamageSeverity string

const (
	SeverityNone     DamageSeverity = "none"
	SeverityMinor    DamageSeverity = "minor"
	SeverityModerate DamageSeverity = "moderate"
	SeveritySevere   DamageSeverity = "severe"
	SeverityTotaled  DamageSeverity = "totaled"
)

// Rank orders severities for corroboration gap checks.
// Unknown values rank as "none".
func (s DamageSeverity) Rank() int {
	switch s {
	case SeverityMinor:
		return 1
	case SeverityModerate:
		return 2
	case SeveritySevere:
		return 3
	case SeverityTotaled:
		return 4
	default:
		return 0
	}
}

// ImageQuality is the overall quality band of a submitted image.
type ImageQuality string

const (
	QualityHigh   ImageQuality = "high"
	QualityMedium ImageQuality = "medium"
	QualityLow    ImageQuality = "low"
)

// StockPhotoLikelihood is the reverse-image-search verdict band.
type StockPhotoLikelihood string

const (
	StockUnknown  StockPhotoLikelihood = "unknown"
	StockLow      StockPhotoLikelihood = "low"
	StockMedium   StockPhotoLikelihood = "medium"
	StockHigh     StockPhotoLikelihood = "high"
	StockVeryHigh StockPhotoLikelihood = "very_high"
)

// FactBundle is the complete structured output of all perception
// providers for one claim. Every section is optional; a nil section
// means the provider did not run and its facts take documented defaults.
// Defaulting happens once in Normalize, never inside rule checks.
type FactBundle struct {
	EXIF          *EXIFMetadata           `json:"exif_metadata,omitempty"`
	OCR           *OCRData                `json:"ocr_data,omitempty"`
	Detector      *DetectorResults        `json:"detector_results,omitempty"`
	Vehicle       *VehicleIdentification  `json:"vehicle_identification,omitempty"`
	Forensic      *ForensicIndicators     `json:"forensic_indicators,omitempty"`
	Authenticity  *AuthenticityIndicators `json:"authenticity_indicators,omitempty"`
	Damage        *DamageAssessment       `json:"damage_assessment,omitempty"`
	PreExisting   *PreExistingIndicators  `json:"pre_existing_indicators,omitempty"`
	Narrative     *NarrativeConsistency   `json:"narrative_consistency,omitempty"`
	MultiImage    *MultiImageAnalysis     `json:"multi_image_analysis,omitempty"`
}

// EXIFMetadata holds image provenance facts.
type EXIFMetadata struct {
	Timestamp    string   `json:"timestamp,omitempty"`
	GPS          *GPSFix  `json:"gps,omitempty"`
	LocationName string   `json:"location_name,omitempty"`
	CameraMake   string   `json:"camera_make,omitempty"`
	CameraModel  string   `json:"camera_model,omitempty"`
}

// GPSFix is a raw coordinate pair from EXIF.
type GPSFix struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Valid reports whether the fix is a plausible coordinate. Zero-zero is
// treated as the EXIF "no fix" sentinel.
func (g *GPSFix) Valid() bool {
	if g == nil {
		return false
	}
	if g.Latitude == 0 && g.Longitude == 0 {
		return false
	}
	return s2.LatLngFromDegrees(g.Latitude, g.Longitude).IsValid()
}

// OCRData holds plate and chassis OCR reads.
type OCRData struct {
	PlateText             string  `json:"plate_text,omitempty"`
	Confidence            float64 `json:"confidence,omitempty"`
	ChaseNumber           string  `json:"chase_number,omitempty"`
	ChaseNumberConfidence float64 `json:"chase_number_confidence,omitempty"`
}

// DetectorResults is the object/damage detector output.
type DetectorResults struct {
	// DamageDetected is a pointer so "detector did not run" is
	// distinguishable from "detector saw no damage".
	DamageDetected *bool          `json:"damage_detected,omitempty"`
	Severity       DamageSeverity `json:"severity,omitempty"`
	Detections     []string       `json:"detections,omitempty"`
}

// VehicleIdentification is the vision-language vehicle identity extraction.
type VehicleIdentification struct {
	Make                 string  `json:"make,omitempty"`
	Model                string  `json:"model,omitempty"`
	Year                 string  `json:"year,omitempty"`
	Color                string  `json:"color,omitempty"`
	DetectedConfidence   float64 `json:"detected_confidence,omitempty"`
	LicensePlateVisible  bool    `json:"license_plate_visible,omitempty"`
	LicensePlateObscured bool    `json:"license_plate_obscured,omitempty"`
}

// ForensicIndicators are image-integrity flags.
type ForensicIndicators struct {
	IsScreenRecapture    bool         `json:"is_screen_recapture,omitempty"`
	HasUIElements        bool         `json:"has_ui_elements,omitempty"`
	HasWatermarks        bool         `json:"has_watermarks,omitempty"`
	ImageQuality         ImageQuality `json:"image_quality,omitempty"`
	IsBlurry             bool         `json:"is_blurry,omitempty"`
	MultipleLightSources bool         `json:"multiple_light_sources,omitempty"`
	ShadowsInconsistent  bool         `json:"shadows_inconsistent,omitempty"`

	// Flat pre-existing flags some extractors emit here instead of the
	// pre_existing_indicators section. Folded in Normalize.
	RustPresent            bool `json:"is_rust_present,omitempty"`
	PaintFadedAroundDamage bool `json:"is_paint_faded_around_damage,omitempty"`
	DirtInDamage           bool `json:"is_dirt_in_damage,omitempty"`
}

// AuthenticityIndicators are manipulation/stock-photo flags.
// The consistency booleans default to true (benign) when the section is
// absent; Normalize materializes that default.
type AuthenticityIndicators struct {
	StockPhotoLikelihood StockPhotoLikelihood `json:"stock_photo_likelihood,omitempty"`
	EditingDetected      bool                 `json:"editing_detected,omitempty"`
	LightingConsistent   *bool                `json:"lighting_consistent,omitempty"`
	ShadowsNatural       *bool                `json:"shadows_natural,omitempty"`
	CompressionUniform   *bool                `json:"compression_uniform,omitempty"`
}

// DamageAssessment is the vision-language damage extraction.
type DamageAssessment struct {
	DamageDetected    *bool          `json:"damage_detected,omitempty"`
	Severity          DamageSeverity `json:"severity,omitempty"`
	DamagedPanels     []string       `json:"damaged_panels,omitempty"`
	DamageType        string         `json:"damage_type,omitempty"`
	SeverityScore     float64        `json:"severity_score,omitempty"`
	AirbagsDeployed   bool           `json:"airbags_deployed,omitempty"`
	FluidLeaksVisible bool           `json:"fluid_leaks_visible,omitempty"`
	PartsMissing      bool           `json:"parts_missing,omitempty"`
	// Cost estimate range in whole rupees; nil when the extractor gave none.
	CostMin *int64 `json:"cost_min,omitempty"`
	CostMax *int64 `json:"cost_max,omitempty"`
}

// PreExistingIndicators flag damage that predates the claimed incident.
type PreExistingIndicators struct {
	RustDetected      bool `json:"rust_detected,omitempty"`
	PaintFading       bool `json:"paint_fading,omitempty"`
	DirtAccumulation  bool `json:"dirt_accumulation,omitempty"`
	OldRepairsVisible bool `json:"old_repairs_visible,omitempty"`
}

// NarrativeConsistency compares the claimant narrative with visual evidence.
type NarrativeConsistency struct {
	VisualEvidenceMatches bool     `json:"visual_evidence_matches"`
	Inconsistencies       []string `json:"inconsistencies,omitempty"`
}

// MultiImageAnalysis holds cross-image consistency flags aggregated by the
// orchestrator when a claim carries more than one photo. The booleans
// default to true (consistent) when unset.
type MultiImageAnalysis struct {
	PlatesConsistent         *bool `json:"plates_consistent,omitempty"`
	VehicleConsistent        *bool `json:"vehicle_consistent,omitempty"`
	LightingConsistent       *bool `json:"lighting_consistent,omitempty"`
	DamageLocationConsistent *bool `json:"damage_location_consistent,omitempty"`
}

// Normalize fills defaults so downstream checks read plain values.
//
// Two kinds of sections exist. Presence-significant sections (EXIF, OCR,
// Vehicle, Detector, Narrative, MultiImage) stay nil when the provider
// did not run; the corresponding checks record a not-applicable pass
// instead of penalizing absent evidence. Benign-default sections
// (Forensic, Authenticity, Damage, PreExisting) are materialized with
// documented defaults so checks read plain values.
//
// Normalize also drops invalid GPS fixes and folds forensic flat
// pre-existing flags into PreExisting. Safe to call on nil. The receiver
// is not mutated.
func (f *FactBundle) Normalize() *FactBundle {
	out := &FactBundle{}
	if f != nil {
		*out = *f
	}

	if out.EXIF != nil {
		exif := *out.EXIF
		if !exif.GPS.Valid() {
			exif.GPS = nil
		}
		out.EXIF = &exif
	}

	if out.Forensic == nil {
		out.Forensic = &ForensicIndicators{ImageQuality: QualityHigh}
	} else {
		fi := *out.Forensic
		if fi.ImageQuality == "" {
			fi.ImageQuality = QualityHigh
		}
		out.Forensic = &fi
	}

	if out.Authenticity == nil {
		out.Authenticity = &AuthenticityIndicators{StockPhotoLikelihood: StockUnknown}
	} else {
		auth := *out.Authenticity
		if auth.StockPhotoLikelihood == "" {
			auth.StockPhotoLikelihood = StockUnknown
		}
		out.Authenticity = &auth
	}

	if out.Damage == nil {
		out.Damage = &DamageAssessment{Severity: SeverityNone}
	} else {
		dmg := *out.Damage
		if dmg.Severity == "" {
			dmg.Severity = SeverityNone
		}
		out.Damage = &dmg
	}

	pre := PreExistingIndicators{}
	if out.PreExisting != nil {
		pre = *out.PreExisting
	}
	pre.RustDetected = pre.RustDetected || out.Forensic.RustPresent
	pre.PaintFading = pre.PaintFading || out.Forensic.PaintFadedAroundDamage
	pre.DirtAccumulation = pre.DirtAccumulation || out.Forensic.DirtInDamage
	out.PreExisting = &pre

	if out.Detector != nil {
		det := *out.Detector
		if det.Severity == "" {
			det.Severity = SeverityNone
		}
		out.Detector = &det
	}

	return out
}

// LightingOK resolves the default-true lighting flag.
func (a *AuthenticityIndicators) LightingOK() bool {
	return a.LightingConsistent == nil || *a.LightingConsistent
}

// ShadowsOK resolves the default-true shadow flag.
func (a *AuthenticityIndicators) ShadowsOK() bool {
	return a.ShadowsNatural == nil || *a.ShadowsNatural
}

// CompressionOK resolves the default-true compression flag.
func (a *AuthenticityIndicators) CompressionOK() bool {
	return a.CompressionUniform == nil || *a.CompressionUniform
}

// ParseTimestamp parses the EXIF timestamp if present.
func (e *EXIFMetadata) ParseTimestamp() (time.Time, bool) {
	if e == nil || e.Timestamp == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006:01:02 15:04:05"} {
		if t, err := time.Parse(layout, e.Timestamp); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
