package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okoa-labs/fuelscan/constants"
	"github.com/okoa-labs/fuelscan/internal/entity"
)

var fixedNow = time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

func testEngine() *Engine {
	return NewEngine(func() time.Time { return fixedNow })
}

func ptr(f float64) *float64 { return &f }

func verifiedInvoice(total float64) *entity.AuthorityInvoice {
	return &entity.AuthorityInvoice{
		InvoiceNumber: "0070000001234567",
		MerchantName:  "SHELL WESTLANDS",
		TotalAmount:   ptr(total),
		InvoiceDate:   time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC),
		Verified:      true,
	}
}

func localExtraction(conf float64) entity.Extraction {
	return entity.Extraction{
		MerchantName: "SHELL WESTLANDS",
		TotalAmount:  5000,
		TxDate:       time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC),
		Litres:       27.17,
		FuelType:     constants.Petrol,
		Confidence:   conf,
		Source:       constants.SourceLocal,
	}
}

func TestMergeAuthorityWinsOverDisagreeingOCR(t *testing.T) {
	local := localExtraction(82)
	local.TotalAmount = 5800 // misread against the verified 5000

	tx := testEngine().Merge(nil, verifiedInvoice(5000), local, nil)

	assert.Equal(t, 5000.0, tx.Amount.Value)
	assert.Equal(t, constants.SourceAuthority, tx.Amount.Source)
	assert.True(t, tx.Amount.NeedsReview, "credible disagreement must be flagged")
	assert.True(t, tx.KRAVerified)
	assert.Equal(t, constants.StatusNeedsReview, tx.OverallStatus)
}

func TestMergeLowConfidenceLocalOnly(t *testing.T) {
	local := localExtraction(45)
	local.Litres = 0 // keep the unit-price check out of the way

	tx := testEngine().Merge(nil, nil, local, nil)

	assert.Equal(t, 5000.0, tx.Amount.Value)
	assert.Equal(t, constants.SourceLocal, tx.Amount.Source)
	assert.True(t, tx.Amount.NeedsReview, "sole source below the review floor")
	assert.Equal(t, constants.StatusNeedsReview, tx.OverallStatus)
}

func TestMergeCleanRecordIsVerified(t *testing.T) {
	local := localExtraction(85)

	tx := testEngine().Merge(nil, verifiedInvoice(5000), local, nil)

	assert.Equal(t, constants.StatusVerified, tx.OverallStatus)
	assert.False(t, tx.Amount.NeedsReview)
	assert.Equal(t, "SHELL WESTLANDS", tx.Merchant.Value)
	assert.Equal(t, constants.SourceAuthority, tx.Merchant.Source)
	// nobody produced these fields: empty, not flagged
	assert.Empty(t, tx.PumpNumber.Value)
	assert.False(t, tx.PumpNumber.NeedsReview)
	assert.Empty(t, tx.VehicleReg.Value)
	assert.False(t, tx.VehicleReg.NeedsReview)
}

func TestMergePricePerLitreOutOfBand(t *testing.T) {
	local := localExtraction(85)
	local.TotalAmount = 50000
	local.Litres = 100 // implies 500 KES/litre on petrol

	tx := testEngine().Merge(nil, nil, local, nil)

	assert.True(t, tx.PricePerLitre.NeedsReview)
	assert.LessOrEqual(t, tx.PricePerLitre.Confidence, outOfBandConfidence)
	assert.Equal(t, constants.StatusNeedsReview, tx.OverallStatus)
}

func TestMergePricePerLitreDerivedFromTotal(t *testing.T) {
	local := localExtraction(85)
	local.TotalAmount = 5000
	local.Litres = 25 // 200 KES/litre, inside the petrol band

	tx := testEngine().Merge(nil, nil, local, nil)

	require.InDelta(t, 200.0, tx.PricePerLitre.Value, 0.01)
	assert.False(t, tx.PricePerLitre.NeedsReview)
}

func TestMergeUnusableTotalIsError(t *testing.T) {
	local := localExtraction(10)

	tx := testEngine().Merge(nil, nil, local, nil)

	assert.Equal(t, constants.StatusError, tx.OverallStatus)
	assert.Zero(t, tx.Amount.Value, "unusable totals are discarded, not reported")
}

func TestMergeNoTotalAnywhereIsError(t *testing.T) {
	local := entity.Extraction{
		MerchantName: "TOTAL ENERGIES KILIMANI",
		Confidence:   40,
	}

	tx := testEngine().Merge(nil, nil, local, nil)

	assert.Equal(t, constants.StatusError, tx.OverallStatus)
	assert.Zero(t, tx.Amount.Value)
	// partial fields survive on the record
	assert.Equal(t, "TOTAL ENERGIES KILIMANI", tx.Merchant.Value)
}

func TestMergeImplausibleDateReplaced(t *testing.T) {
	local := localExtraction(85)
	local.TxDate = fixedNow.AddDate(-3, 0, 0) // OCR transposed the year

	tx := testEngine().Merge(nil, nil, local, nil)

	want := time.Date(fixedNow.Year(), fixedNow.Month(), fixedNow.Day(), 0, 0, 0, 0, time.UTC)
	assert.Equal(t, want, tx.TxDate.Value)
	assert.False(t, tx.TxDate.NeedsReview, "replacement is silent")
}

func TestMergeFutureDateReplaced(t *testing.T) {
	local := localExtraction(85)
	local.TxDate = fixedNow.AddDate(0, 1, 0)

	tx := testEngine().Merge(nil, nil, local, nil)

	want := time.Date(fixedNow.Year(), fixedNow.Month(), fixedNow.Day(), 0, 0, 0, 0, time.UTC)
	assert.Equal(t, want, tx.TxDate.Value)
}

func TestMergePriorityVisionOverLocal(t *testing.T) {
	local := localExtraction(85)
	local.MerchantName = "SHELL WESTLNDS" // garbled
	vision := &entity.Extraction{
		MerchantName: "SHELL WESTLANDS",
		TotalAmount:  5000,
		Litres:       27.17,
		FuelType:     constants.Petrol,
	}

	tx := testEngine().Merge(nil, nil, local, vision)

	assert.Equal(t, "SHELL WESTLANDS", tx.Merchant.Value)
	assert.Equal(t, constants.SourceVision, tx.Merchant.Source)
	assert.Equal(t, float64(constants.ConfidenceVision), tx.Merchant.Confidence)
}

func TestMergeDecodedCodeFieldsOutrankVision(t *testing.T) {
	decoded := &entity.DecodedCode{
		Fields: map[string]string{
			"merchant": "RUBIS KAREN",
			"total":    "KES 4,200.00",
			"date":     "2026-03-12",
		},
	}
	vision := &entity.Extraction{MerchantName: "RUBIS NGONG RD", TotalAmount: 4100}

	tx := testEngine().Merge(decoded, nil, localExtraction(20), vision)

	assert.Equal(t, "RUBIS KAREN", tx.Merchant.Value)
	assert.Equal(t, constants.SourceCode, tx.Merchant.Source)
	assert.Equal(t, 4200.0, tx.Amount.Value)
	assert.Equal(t, time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC), tx.TxDate.Value)
}

func TestMergeIsDeterministic(t *testing.T) {
	e := testEngine()
	a := e.Merge(nil, verifiedInvoice(5000), localExtraction(85), nil)
	b := e.Merge(nil, verifiedInvoice(5000), localExtraction(85), nil)
	assert.Equal(t, a, b)
	assert.Equal(t, fixedNow, a.CreatedAt)
}

func TestParseLooseAmount(t *testing.T) {
	cases := map[string]float64{
		"KES 4,200.00": 4200,
		"4200":         4200,
		"4,200.50/-":   4200.5,
		"":             0,
		"n/a":          0,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLooseAmount(in), "input %q", in)
	}
}

func TestBandForUnknownFuelUsesDefault(t *testing.T) {
	band := bandFor(constants.Unknown)
	assert.True(t, band.contains(150))
	assert.False(t, band.contains(50))
	assert.False(t, band.contains(400))
}
