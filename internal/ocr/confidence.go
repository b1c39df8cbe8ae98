package ocr

import (
	"math"
	"regexp"
	"strings"

	"github.com/okoa-labs/fuelscan/internal/entity"
)

var (
	reAnyDate   = regexp.MustCompile(`\b[0-3]?[0-9][/\-.][01]?[0-9][/\-.]20[0-9]{2}\b|\b20[0-9]{2}-[01][0-9]-[0-3][0-9]\b`)
	reAnyCurr   = regexp.MustCompile(`(?i)\b(kshs?|kes|ksh)\b`)
	reAnyAmount = regexp.MustCompile(`\b\d{1,3}(,\d{3})*(\.\d{2})\b|\b\d+\.\d{2}\b`)
)

// heuristicConfidence scores decoded text on receipt artifacts, 0..100.
// One score for the whole pass: OCR failure tends to be global (blur, skew).
func heuristicConfidence(txt string) float64 {
	txtL := strings.ToLower(txt)
	score := 20.0 // base
	if reAnyDate.MatchString(txtL) {
		score += 20
	}
	if reAnyCurr.MatchString(txtL) {
		score += 15
	}
	if reAnyAmount.MatchString(txtL) {
		score += 15
	}
	if len(txt) > 120 { // enough content
		score += 10
	}
	return math.Min(score, 100)
}

// scoreExtraction blends tesseract's own word confidence with the text
// heuristic, then adjusts for whether a total was found and how close it
// sits to an already-known expected total (e.g. from the authority page).
func scoreExtraction(ext entity.Extraction, tsvConf, expectedTotal float64) float64 {
	heur := heuristicConfidence(ext.RawText)

	var conf float64
	if tsvConf > 0 {
		conf = 0.7*tsvConf + 0.3*heur
	} else {
		conf = heur
	}

	if !ext.HasTotal() {
		// a pass that cannot find any total is not trustworthy, whatever
		// tesseract thought of the glyphs
		conf = math.Min(conf, 40)
	} else if expectedTotal > 0 {
		rel := math.Abs(ext.TotalAmount-expectedTotal) / expectedTotal
		switch {
		case rel <= 0.02:
			conf += 15
		case rel >= 0.10:
			conf -= 20
		}
	}

	return math.Max(0, math.Min(conf, 100))
}
