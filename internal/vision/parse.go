package vision

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/okoa-labs/fuelscan/constants"
	"github.com/okoa-labs/fuelscan/internal/entity"
)

// fuelFields mirrors the JSON schema the model is asked to fill.
type fuelFields struct {
	MerchantName  string  `json:"merchant_name"`
	TotalAmount   float64 `json:"total_amount"`
	TxDate        string  `json:"tx_date"`
	Litres        float64 `json:"litres"`
	FuelType      string  `json:"fuel_type"`
	PricePerLitre float64 `json:"price_per_litre"`
	PumpNumber    string  `json:"pump_number"`
	VehicleReg    string  `json:"vehicle_reg"`
}

var visionDateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
}

// parseResponse strips markdown fences, isolates the JSON object, validates
// it against the schema and maps it onto an Extraction.
func parseResponse(text string) (*entity.Extraction, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON object in response")
	}
	raw := []byte(text[start : end+1])

	if err := validateJSONAgainstSchema(buildFuelJSONSchema(), raw); err != nil {
		return nil, err
	}

	var f fuelFields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}

	ext := &entity.Extraction{
		MerchantName:  strings.TrimSpace(f.MerchantName),
		TotalAmount:   f.TotalAmount,
		Litres:        f.Litres,
		FuelType:      constants.CanonicalFuelType(f.FuelType),
		PricePerLitre: f.PricePerLitre,
		PumpNumber:    strings.TrimSpace(f.PumpNumber),
		VehicleReg:    strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(f.VehicleReg)), " ", ""),
		Confidence:    constants.ConfidenceVision,
		Source:        constants.SourceVision,
	}
	if f.FuelType != "" && ext.FuelType == constants.Unknown {
		// unknown vocabulary: keep nothing rather than a guess
		ext.FuelType = ""
	}
	for _, layout := range visionDateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(f.TxDate)); err == nil {
			ext.TxDate = t
			break
		}
	}
	return ext, nil
}
