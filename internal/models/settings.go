package models

// Settings is the singleton settings collection. Reads always merge the
// stored document onto DefaultSettings, so a partially written file can
// never surface missing keys.
type Settings struct {
	StoreName              string  `json:"storeName"`
	SupportEmail           string  `json:"supportEmail"`
	Currency               string  `json:"currency"`
	ReferralCommissionRate float64 `json:"referralCommissionRate"`
	FirstOrderBonusAmount  float64 `json:"firstOrderBonusAmount"`
	TaxRate                float64 `json:"taxRate"`
	FlatShippingRate       float64 `json:"flatShippingRate"`
	FreeShippingThreshold  float64 `json:"freeShippingThreshold"`
	AutoSubmitOrders       bool    `json:"autoSubmitOrders"`
}

// DefaultSettings returns the hard-coded defaults every read merges onto.
func DefaultSettings() Settings {
	return Settings{
		StoreName:              "MedSupply",
		SupportEmail:           "support@medsupply.example",
		Currency:               "USD",
		ReferralCommissionRate: 0.05,
		FirstOrderBonusAmount:  10.00,
		TaxRate:                0.0,
		FlatShippingRate:       9.95,
		FreeShippingThreshold:  150.00,
		AutoSubmitOrders:       true,
	}
}
