// Package estimator prices repair costs from damaged-panel lists using a
// curated part price table. Prices are US industry averages (parts plus
// labor) in whole USD, converted to INR for display.
package estimator

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/autoclaim/kestrel/internal/domain"
)

// DefaultUSDToINR is the display conversion rate. Updated periodically.
const DefaultUSDToINR = 84.0

type partPrice struct {
	Name string
	Min  int64
	Max  int64
}

// partPriceTableUSD maps canonical panel keys to repair cost ranges.
var partPriceTableUSD = map[string]partPrice{
	// bumpers
	"front_bumper": {"Front Bumper", 300, 900},
	"rear_bumper":  {"Rear Bumper", 250, 800},

	// hood / trunk
	"hood":      {"Hood", 400, 1200},
	"trunk":     {"Trunk Lid", 300, 900},
	"trunk_lid": {"Trunk Lid", 300, 900},

	// fenders
	"fender_fl": {"Front Left Fender", 200, 600},
	"fender_fr": {"Front Right Fender", 200, 600},
	"fender_rl": {"Rear Left Fender", 250, 700},
	"fender_rr": {"Rear Right Fender", 250, 700},

	// doors
	"door_fl": {"Front Left Door", 300, 900},
	"door_fr": {"Front Right Door", 300, 900},
	"door_rl": {"Rear Left Door", 300, 900},
	"door_rr": {"Rear Right Door", 300, 900},

	// roof
	"roof": {"Roof Panel", 800, 2500},

	// quarter panels
	"quarter_panel_l": {"Left Quarter Panel", 400, 1200},
	"quarter_panel_r": {"Right Quarter Panel", 400, 1200},

	// glass
	"windshield":      {"Windshield", 200, 600},
	"rear_windshield": {"Rear Windshield", 150, 500},
	"window_fl":       {"Front Left Window", 100, 350},
	"window_fr":       {"Front Right Window", 100, 350},

	// lights
	"headlight_l": {"Left Headlight Assembly", 150, 500},
	"headlight_r": {"Right Headlight Assembly", 150, 500},
	"taillight_l": {"Left Taillight Assembly", 100, 400},
	"taillight_r": {"Right Taillight Assembly", 100, 400},

	// grille / mirrors
	"grille":        {"Front Grille", 100, 400},
	"side_mirror_l": {"Left Side Mirror", 80, 250},
	"side_mirror_r": {"Right Side Mirror", 80, 250},

	// mechanical
	"radiator":   {"Radiator", 200, 600},
	"frame":      {"Frame / Chassis", 1000, 5000},
	"engine":     {"Engine Components", 1500, 8000},
	"suspension": {"Suspension", 300, 1500},
	"axle":       {"Axle", 400, 1200},
}

// partPriceOrder fixes the scan order for substring resolution.
// Ambiguous names like "bumper" or "door" match several table keys, so
// the fallback must never walk the map directly.
var partPriceOrder = []string{
	"front_bumper", "rear_bumper",
	"hood", "trunk", "trunk_lid",
	"fender_fl", "fender_fr", "fender_rl", "fender_rr",
	"door_fl", "door_fr", "door_rl", "door_rr",
	"roof",
	"quarter_panel_l", "quarter_panel_r",
	"windshield", "rear_windshield", "window_fl", "window_fr",
	"headlight_l", "headlight_r", "taillight_l", "taillight_r",
	"grille", "side_mirror_l", "side_mirror_r",
	"radiator", "frame", "engine", "suspension", "axle",
}

// panelAliases maps common extractor output variations to canonical keys.
var panelAliases = map[string]string{
	// bumpers
	"bumper_front": "front_bumper",
	"bumper_rear":  "rear_bumper",
	"front bumper": "front_bumper",
	"rear bumper":  "rear_bumper",
	// hood
	"bonnet": "hood",
	// doors
	"front_left_door":  "door_fl",
	"front_right_door": "door_fr",
	"rear_left_door":   "door_rl",
	"rear_right_door":  "door_rr",
	// fenders
	"front_left_fender":  "fender_fl",
	"front_right_fender": "fender_fr",
	"left_fender":        "fender_fl",
	"right_fender":       "fender_fr",
	// quarter panels
	"left_quarter_panel":  "quarter_panel_l",
	"right_quarter_panel": "quarter_panel_r",
	// lights
	"left_headlight":  "headlight_l",
	"right_headlight": "headlight_r",
	"left_taillight":  "taillight_l",
	"right_taillight": "taillight_r",
	// mirrors
	"left_mirror":  "side_mirror_l",
	"right_mirror": "side_mirror_r",
	// glass
	"front_windshield": "windshield",
	"back_windshield":  "rear_windshield",
}

// resolvePanelKey maps a free-form panel name to a canonical table key.
// Resolution order: exact, alias, then substring in either direction.
// Returns "" when nothing matches.
func resolvePanelKey(panel string) string {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(panel)), " ", "_")
	if key == "" {
		return ""
	}
	if _, ok := partPriceTableUSD[key]; ok {
		return key
	}
	if canonical, ok := panelAliases[key]; ok {
		return canonical
	}
	for _, tableKey := range partPriceOrder {
		if strings.Contains(tableKey, key) || strings.Contains(key, tableKey) {
			return tableKey
		}
	}
	return ""
}

// Estimator prices damaged panels at a fixed conversion rate.
type Estimator struct {
	rate decimal.Decimal
}

// New returns an estimator using the default USD to INR rate.
func New() *Estimator {
	return NewWithRate(DefaultUSDToINR)
}

// NewWithRate returns an estimator with a custom conversion rate.
func NewWithRate(usdToINR float64) *Estimator {
	return &Estimator{rate: decimal.NewFromFloat(usdToINR)}
}

// Estimate prices a list of damaged panels. Panels resolving to the same
// canonical part are counted once; unresolvable panels are reported, not
// errors. Vehicle fields are display only.
func (e *Estimator) Estimate(damagedPanels []string, vehicleMake, vehicleModel, vehicleYear string) *domain.CostEstimate {
	rate, _ := e.rate.Float64()
	est := &domain.CostEstimate{
		Breakdown:          []domain.PartEstimate{},
		USDToINRRate:       rate,
		UnrecognizedPanels: []string{},
		VehicleInfo:        vehicleInfo(vehicleMake, vehicleModel, vehicleYear),
	}

	seen := make(map[string]bool)
	for _, panel := range damagedPanels {
		key := resolvePanelKey(panel)
		if key == "" {
			est.UnrecognizedPanels = append(est.UnrecognizedPanels, panel)
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		price := partPriceTableUSD[key]
		est.Breakdown = append(est.Breakdown, domain.PartEstimate{
			PanelKey: key,
			Part:     price.Name,
			USDMin:   price.Min,
			USDMax:   price.Max,
			INRMin:   e.toINR(price.Min),
			INRMax:   e.toINR(price.Max),
		})
	}

	for _, part := range est.Breakdown {
		est.TotalUSDMin += part.USDMin
		est.TotalUSDMax += part.USDMax
	}
	est.TotalINRMin = e.toINR(est.TotalUSDMin)
	est.TotalINRMax = e.toINR(est.TotalUSDMax)
	return est
}

// toINR converts whole USD to whole INR, rounding half away from zero.
func (e *Estimator) toINR(usd int64) int64 {
	return decimal.NewFromInt(usd).Mul(e.rate).Round(0).IntPart()
}

func vehicleInfo(vehicleMake, vehicleModel, vehicleYear string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{vehicleYear, vehicleMake, vehicleModel} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "Unknown Vehicle"
	}
	return strings.Join(parts, " ")
}
