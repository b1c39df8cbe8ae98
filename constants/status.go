package constants

// Status classifies a reconciled transaction as a whole.
type Status string

// Stable values (store these exact strings in DB).
const (
	StatusVerified    Status = "verified"     // total resolved, no field flagged
	StatusNeedsReview Status = "needs_review" // total resolved, at least one field flagged
	StatusError       Status = "error"        // no usable total from any source
)

// Source identifies which extraction source produced a field value.
type Source string

const (
	SourceAuthority Source = "authority" // KRA invoice checker, ground truth
	SourceCode      Source = "code"      // structured fields decoded from the QR payload
	SourceVision    Source = "vision"    // cloud vision fallback
	SourceLocal     Source = "local"     // local tesseract pass
)

// Fixed trust scores per source. The local pass carries its own score
// instead; these apply to the other three.
const (
	ConfidenceAuthority = 100
	ConfidenceCode      = 90
	ConfidenceVision    = 85
)
