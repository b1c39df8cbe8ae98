package entity

import "time"

// AuthorityInvoice is the government-hosted record of a transaction,
// scraped from the KRA invoice checker. Any field it populates is treated
// as ground truth by the reconciliation engine.
type AuthorityInvoice struct {
	InvoiceNumber       string    `json:"invoice_number"`
	TraderInvoiceNumber string    `json:"trader_invoice_number,omitempty"`
	MerchantName        string    `json:"merchant_name,omitempty"`
	TotalAmount         *float64  `json:"total_amount,omitempty"`
	TaxableAmount       *float64  `json:"taxable_amount,omitempty"`
	VATAmount           *float64  `json:"vat_amount,omitempty"`
	InvoiceDate         time.Time `json:"invoice_date,omitempty"`

	// Verified is true only when both an invoice number and a total amount
	// were extracted. A partially-parsed page keeps its fields but stays
	// unverified.
	Verified bool `json:"verified"`
}
