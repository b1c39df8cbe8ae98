// Package reconcile merges the outputs of every extraction source into one
// confidence-scored transaction record. Merge is a pure function: same
// inputs, same output — the only clock it ever reads is injected.
package reconcile

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/okoa-labs/fuelscan/constants"
	"github.com/okoa-labs/fuelscan/internal/entity"
)

const (
	// reviewFloor: a populated field whose best source scored below this
	// is flagged for human review.
	reviewFloor = 60.0
	// usableFloor: a total below this does not count as resolved at all.
	usableFloor = 30.0
	// amountTolerance: relative disagreement between credible sources
	// beyond this flags the amount.
	amountTolerance = 0.02
	// pplTolerance: stated price/litre vs total/litres disagreement.
	pplTolerance = 0.05
	// outOfBandConfidence caps a field that failed range validation.
	outOfBandConfidence = 30.0
	// maxDateAge: transaction dates older than this are implausible.
	maxDateAge = 2 * 365 * 24 * time.Hour
)

// Engine reconciles stage outputs. The clock is injectable so the
// implausible-date replacement path is testable.
type Engine struct {
	now func() time.Time
}

func NewEngine(now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{now: now}
}

// candidate is one source's claim for a field, listed in priority order.
type candidate struct {
	str    string
	num    float64
	date   time.Time
	source constants.Source
	conf   float64
}

// Merge combines all available sources by the canonical priority table:
// authority > decoded-code structured fields > vision > local.
func (e *Engine) Merge(
	decoded *entity.DecodedCode,
	authority *entity.AuthorityInvoice,
	local entity.Extraction,
	vision *entity.Extraction,
) entity.ReconciledTransaction {
	code := codeExtraction(decoded)

	tx := entity.ReconciledTransaction{
		Merchant:      pickString(merchantCandidates(authority, code, vision, local)),
		Amount:        pickNumber(amountCandidates(authority, code, vision, local)),
		TxDate:        pickDate(dateCandidates(authority, code, vision, local)),
		Litres:        pickNumber(extractionNumbers(code, vision, local, func(x entity.Extraction) float64 { return x.Litres })),
		FuelType:      pickString(fuelTypeCandidates(code, vision, local)),
		PricePerLitre: pickNumber(extractionNumbers(code, vision, local, func(x entity.Extraction) float64 { return x.PricePerLitre })),
		PumpNumber:    pickString(extractionStrings(code, vision, local, func(x entity.Extraction) string { return x.PumpNumber })),
		VehicleReg:    pickString(extractionStrings(code, vision, local, func(x entity.Extraction) string { return x.VehicleReg })),
		CreatedAt:     e.now(),
	}

	if authority != nil {
		tx.InvoiceNumber = authority.InvoiceNumber
		tx.TaxableAmount = authority.TaxableAmount
		tx.VATAmount = authority.VATAmount
		tx.KRAVerified = authority.Verified
	}

	e.flagAmountDisagreement(&tx, amountCandidates(authority, code, vision, local))
	e.validatePricePerLitre(&tx)
	e.sanitizeDate(&tx)
	e.classify(&tx)
	return tx
}

// --- candidate assembly (priority order: authority, code, vision, local) ---

func codeExtraction(decoded *entity.DecodedCode) entity.Extraction {
	ext := entity.Extraction{Source: constants.SourceCode, Confidence: constants.ConfidenceCode}
	if decoded == nil {
		return ext
	}
	for key, value := range decoded.Fields {
		switch {
		case strings.Contains(key, "merchant"), strings.Contains(key, "trader"), strings.Contains(key, "name"):
			ext.MerchantName = value
		case strings.Contains(key, "total"), strings.Contains(key, "amount"):
			if f := parseLooseAmount(value); f > 0 {
				ext.TotalAmount = f
			}
		case strings.Contains(key, "date"):
			if t := parseLooseDate(value); !t.IsZero() {
				ext.TxDate = t
			}
		}
	}
	return ext
}

func merchantCandidates(authority *entity.AuthorityInvoice, code entity.Extraction, vision *entity.Extraction, local entity.Extraction) []candidate {
	var cands []candidate
	if authority != nil && authority.MerchantName != "" {
		cands = append(cands, candidate{str: authority.MerchantName, source: constants.SourceAuthority, conf: constants.ConfidenceAuthority})
	}
	return append(cands, extractionStrings(code, vision, local, func(x entity.Extraction) string { return x.MerchantName })...)
}

func amountCandidates(authority *entity.AuthorityInvoice, code entity.Extraction, vision *entity.Extraction, local entity.Extraction) []candidate {
	var cands []candidate
	if authority != nil && authority.TotalAmount != nil && *authority.TotalAmount > 0 {
		cands = append(cands, candidate{num: *authority.TotalAmount, source: constants.SourceAuthority, conf: constants.ConfidenceAuthority})
	}
	return append(cands, extractionNumbers(code, vision, local, func(x entity.Extraction) float64 { return x.TotalAmount })...)
}

func dateCandidates(authority *entity.AuthorityInvoice, code entity.Extraction, vision *entity.Extraction, local entity.Extraction) []candidate {
	var cands []candidate
	if authority != nil && !authority.InvoiceDate.IsZero() {
		cands = append(cands, candidate{date: authority.InvoiceDate, source: constants.SourceAuthority, conf: constants.ConfidenceAuthority})
	}
	for _, c := range orderedExtractions(code, vision, local) {
		if !c.ext.TxDate.IsZero() {
			cands = append(cands, candidate{date: c.ext.TxDate, source: c.ext.Source, conf: c.conf})
		}
	}
	return cands
}

func fuelTypeCandidates(code entity.Extraction, vision *entity.Extraction, local entity.Extraction) []candidate {
	var cands []candidate
	for _, c := range orderedExtractions(code, vision, local) {
		ft := c.ext.FuelType
		if ft != "" && ft != constants.Unknown {
			cands = append(cands, candidate{str: string(ft), source: c.ext.Source, conf: c.conf})
		}
	}
	return cands
}

type orderedExt struct {
	ext  entity.Extraction
	conf float64
}

func orderedExtractions(code entity.Extraction, vision *entity.Extraction, local entity.Extraction) []orderedExt {
	out := []orderedExt{{ext: code, conf: constants.ConfidenceCode}}
	if vision != nil {
		v := *vision
		v.Source = constants.SourceVision
		out = append(out, orderedExt{ext: v, conf: constants.ConfidenceVision})
	}
	local.Source = constants.SourceLocal
	return append(out, orderedExt{ext: local, conf: local.Confidence})
}

func extractionStrings(code entity.Extraction, vision *entity.Extraction, local entity.Extraction, get func(entity.Extraction) string) []candidate {
	var cands []candidate
	for _, c := range orderedExtractions(code, vision, local) {
		if v := get(c.ext); v != "" {
			cands = append(cands, candidate{str: v, source: c.ext.Source, conf: c.conf})
		}
	}
	return cands
}

func extractionNumbers(code entity.Extraction, vision *entity.Extraction, local entity.Extraction, get func(entity.Extraction) float64) []candidate {
	var cands []candidate
	for _, c := range orderedExtractions(code, vision, local) {
		if v := get(c.ext); v > 0 {
			cands = append(cands, candidate{num: v, source: c.ext.Source, conf: c.conf})
		}
	}
	return cands
}

// --- selection ---

// pickString takes the first candidate (priority order). A field populated
// only by sub-floor sources keeps its value but is flagged; a field nobody
// populated stays empty and unflagged — there is nothing to review.
func pickString(cands []candidate) entity.StringField {
	if len(cands) == 0 {
		return entity.StringField{}
	}
	best := cands[0]
	return entity.StringField{
		Value:       best.str,
		Source:      best.source,
		Confidence:  best.conf,
		NeedsReview: maxConf(cands) < reviewFloor,
	}
}

func pickNumber(cands []candidate) entity.NumberField {
	if len(cands) == 0 {
		return entity.NumberField{}
	}
	best := cands[0]
	return entity.NumberField{
		Value:       best.num,
		Source:      best.source,
		Confidence:  best.conf,
		NeedsReview: maxConf(cands) < reviewFloor,
	}
}

func pickDate(cands []candidate) entity.DateField {
	if len(cands) == 0 {
		return entity.DateField{}
	}
	best := cands[0]
	return entity.DateField{
		Value:       best.date,
		Source:      best.source,
		Confidence:  best.conf,
		NeedsReview: maxConf(cands) < reviewFloor,
	}
}

func maxConf(cands []candidate) float64 {
	m := 0.0
	for _, c := range cands {
		m = math.Max(m, c.conf)
	}
	return m
}

// --- validation rules ---

// flagAmountDisagreement flags the amount when credible sources disagree
// beyond tolerance. The priority winner still keeps the value.
func (e *Engine) flagAmountDisagreement(tx *entity.ReconciledTransaction, cands []candidate) {
	if tx.Amount.Value <= 0 {
		return
	}
	for _, c := range cands {
		if c.source == tx.Amount.Source || c.conf < reviewFloor {
			continue
		}
		rel := math.Abs(c.num-tx.Amount.Value) / tx.Amount.Value
		if rel > amountTolerance {
			tx.Amount.NeedsReview = true
			return
		}
	}
}

// validatePricePerLitre computes total/litres, checks it against the
// fuel-type band and cross-checks any stated unit price. Out-of-band values
// are flagged and their confidence slashed even when the source was trusted.
func (e *Engine) validatePricePerLitre(tx *entity.ReconciledTransaction) {
	var computed float64
	if tx.Amount.Value > 0 && tx.Litres.Value > 0 {
		computed = tx.Amount.Value / tx.Litres.Value
	}

	// derive a missing unit price from total/litres
	if tx.PricePerLitre.Value == 0 && computed > 0 {
		tx.PricePerLitre = entity.NumberField{
			Value:      math.Round(computed*100) / 100,
			Source:     tx.Amount.Source,
			Confidence: math.Min(tx.Amount.Confidence, tx.Litres.Confidence),
		}
	}
	if tx.PricePerLitre.Value == 0 {
		return
	}

	band := bandFor(constants.FuelType(tx.FuelType.Value))
	check := tx.PricePerLitre.Value
	if computed > 0 {
		check = computed
	}
	if !band.contains(check) {
		tx.PricePerLitre.NeedsReview = true
		tx.PricePerLitre.Confidence = math.Min(tx.PricePerLitre.Confidence, outOfBandConfidence)
		return
	}
	if computed > 0 && math.Abs(tx.PricePerLitre.Value-computed)/computed > pplTolerance {
		tx.PricePerLitre.NeedsReview = true
	}
}

// sanitizeDate replaces implausible dates (future, or more than two years
// past) with the processing date. This protects against OCR digit
// transposition without discarding the rest of the record, and the
// replacement does not flag the field.
func (e *Engine) sanitizeDate(tx *entity.ReconciledTransaction) {
	if tx.TxDate.Value.IsZero() {
		return
	}
	now := e.now()
	d := tx.TxDate.Value
	if d.After(now) || now.Sub(d) > maxDateAge {
		tx.TxDate.Value = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// classify sets the overall status. A total below the usable floor counts
// as unresolved: that is the single fatal condition.
func (e *Engine) classify(tx *entity.ReconciledTransaction) {
	if tx.Amount.Value <= 0 || tx.Amount.Confidence < usableFloor {
		tx.Amount = entity.NumberField{}
		tx.OverallStatus = constants.StatusError
		return
	}
	if tx.NeedsReview() {
		tx.OverallStatus = constants.StatusNeedsReview
		return
	}
	tx.OverallStatus = constants.StatusVerified
}

// --- loose parsing for QR structured payloads ---

func parseLooseAmount(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	s = strings.TrimSpace(strings.TrimPrefix(strings.ToUpper(s), "KES"))
	for i, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			s = s[:i]
			break
		}
	}
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseLooseDate(s string) time.Time {
	for _, layout := range []string{"2006-01-02", "02/01/2006", "20060102", "02-01-2006"} {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t
		}
	}
	return time.Time{}
}
