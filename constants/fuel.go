package constants

import "strings"

type FuelType string

const (
	Petrol   FuelType = "PETROL"
	Diesel   FuelType = "DIESEL"
	Kerosene FuelType = "KEROSENE"
	LPG      FuelType = "LPG"
	Unknown  FuelType = "UNKNOWN"
)

var allFuelTypes = []FuelType{Petrol, Diesel, Kerosene, LPG}

// fuel vocabulary seen on Kenyan pump receipts, mapped to canonical types
var fuelSynonyms = map[string]FuelType{
	"petrol":    Petrol,
	"super":     Petrol,
	"unleaded":  Petrol,
	"premium":   Petrol,
	"v-power":   Petrol,
	"vpower":    Petrol,
	"pms":       Petrol,
	"diesel":    Diesel,
	"ago":       Diesel,
	"gasoil":    Diesel,
	"kerosene":  Kerosene,
	"paraffin":  Kerosene,
	"ik":        Kerosene,
	"lpg":       LPG,
	"gas":       LPG,
	"autogas":   LPG,
	"lpg(auto)": LPG,
}

// fuelVocabulary fixes the scan order: product words first, ambient words
// last. "gas" appears in station headers ("GAS STATION") and must never
// outrank a product line, and the first match wins, so reprocessing the
// same text has to walk the same sequence.
var fuelVocabulary = []string{
	"petrol", "super", "unleaded", "premium", "v-power", "vpower", "pms",
	"diesel", "ago", "gasoil",
	"kerosene", "paraffin", "ik",
	"lpg", "lpg(auto)", "autogas",
	"gas",
}

// CanonicalFuelType maps a raw label to a known fuel type.
// Returns Unknown when the label matches no vocabulary entry.
func CanonicalFuelType(input string) FuelType {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return Unknown
	}
	if ft, ok := fuelSynonyms[normalized]; ok {
		return ft
	}
	for _, ft := range allFuelTypes {
		if normalized == strings.ToLower(string(ft)) {
			return ft
		}
	}
	return Unknown
}

// FuelVocabulary returns every raw label the extractor should scan for,
// in match precedence order.
func FuelVocabulary() []string {
	return append([]string(nil), fuelVocabulary...)
}
