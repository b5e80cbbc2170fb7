package domain

// PartEstimate is the priced repair range for one recognized panel.
type PartEstimate struct {
	PanelKey string `json:"panel_key"`
	Part     string `json:"part"`
	USDMin   int64  `json:"usd_min"`
	USDMax   int64  `json:"usd_max"`
	INRMin   int64  `json:"inr_min"`
	INRMax   int64  `json:"inr_max"`
}

// CostEstimate is the aggregate repair cost estimate for a claim.
type CostEstimate struct {
	Breakdown          []PartEstimate `json:"breakdown"`
	TotalUSDMin        int64          `json:"total_usd_min"`
	TotalUSDMax        int64          `json:"total_usd_max"`
	TotalINRMin        int64          `json:"total_inr_min"`
	TotalINRMax        int64          `json:"total_inr_max"`
	USDToINRRate       float64        `json:"usd_to_inr_rate"`
	UnrecognizedPanels []string       `json:"unrecognized_panels"`
	VehicleInfo        string         `json:"vehicle_info"`
}

// HasEstimate reports whether at least one panel was priced.
func (e *CostEstimate) HasEstimate() bool {
	return e != nil && len(e.Breakdown) > 0
}
