package entity

// DecodedCode is the machine-readable code found on a receipt image.
// At most one is produced per image; immutable once produced.
type DecodedCode struct {
	RawText string `json:"raw_text"`
	Format  string `json:"format"` // e.g. "QR_CODE", "CODE_128"

	// InvoiceURL is set when the payload is (or contains) a URL.
	InvoiceURL string `json:"invoice_url,omitempty"`

	// Fields holds structured key/value pairs when the payload is a
	// merchant-asserted blob rather than a bare URL.
	Fields map[string]string `json:"fields,omitempty"`
}
