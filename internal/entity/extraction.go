package entity

import (
	"time"

	"github.com/okoa-labs/fuelscan/constants"
)

// Extraction is the field set produced by the local OCR pass and, with the
// same shape, by the vision fallback. Zero values mean "not found".
type Extraction struct {
	MerchantName  string             `json:"merchant_name,omitempty"`
	TotalAmount   float64            `json:"total_amount,omitempty"`
	TxDate        time.Time          `json:"tx_date,omitempty"`
	Litres        float64            `json:"litres,omitempty"`
	FuelType      constants.FuelType `json:"fuel_type,omitempty"`
	PricePerLitre float64            `json:"price_per_litre,omitempty"`
	PumpNumber    string             `json:"pump_number,omitempty"`
	VehicleReg    string             `json:"vehicle_reg,omitempty"`

	// Confidence scores the whole pass, 0..100. OCR failure tends to be
	// global (blur, skew) rather than per-field, so a single score is enough.
	Confidence float64          `json:"confidence"`
	Source     constants.Source `json:"source"`

	RawText string `json:"-"`
}

// HasTotal reports whether the pass found a total amount at all.
func (e Extraction) HasTotal() bool { return e.TotalAmount > 0 }
