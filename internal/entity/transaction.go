package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/okoa-labs/fuelscan/constants"
)

// StringField is a reconciled text field with its provenance.
type StringField struct {
	Value       string           `json:"value"`
	Source      constants.Source `json:"source,omitempty"`
	Confidence  float64          `json:"confidence"`
	NeedsReview bool             `json:"needs_review"`
}

// NumberField is a reconciled numeric field with its provenance.
type NumberField struct {
	Value       float64          `json:"value"`
	Source      constants.Source `json:"source,omitempty"`
	Confidence  float64          `json:"confidence"`
	NeedsReview bool             `json:"needs_review"`
}

// DateField is a reconciled date field with its provenance.
type DateField struct {
	Value       time.Time        `json:"value"`
	Source      constants.Source `json:"source,omitempty"`
	Confidence  float64          `json:"confidence"`
	NeedsReview bool             `json:"needs_review"`
}

// ReconciledTransaction is the final record emitted for one receipt.
// It is a pure function of the stage outputs that produced it.
type ReconciledTransaction struct {
	ID uuid.UUID `json:"id"`

	Merchant      StringField `json:"merchant"`
	Amount        NumberField `json:"amount"`
	TxDate        DateField   `json:"tx_date"`
	Litres        NumberField `json:"litres"`
	FuelType      StringField `json:"fuel_type"`
	PricePerLitre NumberField `json:"price_per_litre"`
	PumpNumber    StringField `json:"pump_number"`
	VehicleReg    StringField `json:"vehicle_reg"`

	// Tax data straight from the authority invoice, when available.
	InvoiceNumber string   `json:"invoice_number,omitempty"`
	TaxableAmount *float64 `json:"taxable_amount,omitempty"`
	VATAmount     *float64 `json:"vat_amount,omitempty"`

	KRAVerified      bool             `json:"kra_verified"`
	OverallStatus    constants.Status `json:"overall_status"`
	ProcessingTimeMs int64            `json:"processing_time_ms"`
	CreatedAt        time.Time        `json:"created_at"`
}

// NeedsReview reports whether any field carries a review flag.
func (t *ReconciledTransaction) NeedsReview() bool {
	return t.Merchant.NeedsReview ||
		t.Amount.NeedsReview ||
		t.TxDate.NeedsReview ||
		t.Litres.NeedsReview ||
		t.FuelType.NeedsReview ||
		t.PricePerLitre.NeedsReview
}
