package reconcile

import "github.com/okoa-labs/fuelscan/constants"

// priceBand is the plausible KES price-per-litre range for a fuel type.
// Values outside the band are treated as likely OCR digit errors.
type priceBand struct {
	Min float64
	Max float64
}

var priceBands = map[constants.FuelType]priceBand{
	constants.Petrol:   {Min: 170, Max: 230},
	constants.Diesel:   {Min: 150, Max: 220},
	constants.Kerosene: {Min: 140, Max: 210},
	constants.LPG:      {Min: 100, Max: 350},
}

// wide default when the fuel type could not be resolved
var defaultBand = priceBand{Min: 100, Max: 300}

func bandFor(ft constants.FuelType) priceBand {
	if b, ok := priceBands[ft]; ok {
		return b
	}
	return defaultBand
}

func (b priceBand) contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}
