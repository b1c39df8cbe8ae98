package ocr

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okoa-labs/fuelscan/constants"
	"github.com/okoa-labs/fuelscan/internal/entity"
)

// Ordered regex passes over the normalized OCR text. Anchoring on label
// keywords keeps line-item amounts from being mistaken for the total.
var (
	reTotal = regexp.MustCompile(`(?i)(?:grand\s*total|total\s*amount|amount\s*due|net\s*total|total)\s*:?\s*(?:kshs?|kes|ksh)?\.?\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)

	reDateDMY = regexp.MustCompile(`\b([0-3]?[0-9])[/\-.]([01]?[0-9])[/\-.](20[0-9]{2})\b`)
	reDateYMD = regexp.MustCompile(`\b(20[0-9]{2})[/\-.]([01]?[0-9])[/\-.]([0-3]?[0-9])\b`)

	reLitres = regexp.MustCompile(`(?i)(?:\b(?:volume|vol|qty|quantity|litres?|liters?)\s*:?\s*([0-9]+(?:\.[0-9]+)?)\b|\b([0-9]+(?:\.[0-9]+)?)\s*(?:ltrs?|lts?|litres?|liters?|l)\b)`)

	rePricePerLitre = regexp.MustCompile(`(?i)(?:price\s*/?\s*(?:ltr|lt|l|litre)|unit\s*price|rate|@)\s*:?\s*(?:kshs?|kes)?\.?\s*([0-9]+(?:\.[0-9]{1,2})?)`)

	rePump = regexp.MustCompile(`(?i)\bpump\s*(?:no\.?|#|:)?\s*([0-9]{1,2})\b`)

	// Kenyan plate: KXX 123X
	rePlate = regexp.MustCompile(`\bK[A-Z]{2}\s?[0-9]{3}[A-Z]?\b`)

	reHasLetters = regexp.MustCompile(`[A-Za-z]{3,}`)
)

// header lines that are never the merchant name
var merchantNoise = []string{
	"cash sale", "tax invoice", "receipt", "invoice", "welcome", "duplicate",
	"vat", "pin:", "pin ", "till", "esd", "cu no", "date", "fiscal",
}

// extractFields applies the ordered regex passes and returns whatever the
// text yielded. Zero values mean "not found".
func extractFields(text string) entity.Extraction {
	out := entity.Extraction{Source: constants.SourceLocal, RawText: text}
	if strings.TrimSpace(text) == "" {
		return out
	}

	out.MerchantName = extractMerchant(text)
	out.TotalAmount = extractTotal(text)
	out.TxDate = extractDate(text)
	out.Litres = extractFloat(reLitres, text)
	out.PricePerLitre = extractFloat(rePricePerLitre, text)
	out.FuelType = extractFuelType(text)

	if m := rePump.FindStringSubmatch(text); m != nil {
		out.PumpNumber = m[1]
	}
	if m := rePlate.FindString(strings.ToUpper(text)); m != "" {
		out.VehicleReg = strings.ReplaceAll(m, " ", "")
	}
	return out
}

// extractMerchant picks the first non-blank line that looks like a header
// and not receipt boilerplate.
func extractMerchant(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !reHasLetters.MatchString(line) {
			continue
		}
		lower := strings.ToLower(line)
		noisy := false
		for _, n := range merchantNoise {
			if strings.Contains(lower, n) {
				noisy = true
				break
			}
		}
		if noisy {
			continue
		}
		return line
	}
	return ""
}

func extractTotal(text string) float64 {
	matches := reTotal.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return 0
	}
	// grand total is printed last on most tills
	raw := matches[len(matches)-1][1]
	return parseAmount(raw)
}

func extractDate(text string) time.Time {
	if m := reDateDMY.FindStringSubmatch(text); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if t, ok := buildDate(year, month, day); ok {
			return t
		}
	}
	if m := reDateYMD.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if t, ok := buildDate(year, month, day); ok {
			return t
		}
	}
	return time.Time{}
}

func buildDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// reject normalized overflow like 31/02
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

type fuelWord struct {
	re   *regexp.Regexp
	word string
}

// compiled once, in the vocabulary's precedence order; first match wins
var fuelWords = func() []fuelWord {
	words := constants.FuelVocabulary()
	out := make([]fuelWord, 0, len(words))
	for _, w := range words {
		out = append(out, fuelWord{
			re:   regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(w) + `\b`),
			word: w,
		})
	}
	return out
}()

func extractFuelType(text string) constants.FuelType {
	for _, fw := range fuelWords {
		if fw.re.MatchString(text) {
			return constants.CanonicalFuelType(fw.word)
		}
	}
	return ""
}

func extractFloat(re *regexp.Regexp, text string) float64 {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	for _, g := range m[1:] {
		if g != "" {
			return parseAmount(g)
		}
	}
	return 0
}

func parseAmount(raw string) float64 {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}
