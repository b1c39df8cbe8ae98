package authority

import (
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/okoa-labs/fuelscan/internal/entity"
)

// Label synonyms matched by case-insensitive substring. The checker's table
// layout varies between document types, so rows are scanned rather than
// addressed by index.
var (
	labelInvoiceNumber = []string{"cu invoice", "invoice number", "invoice no"}
	labelTraderInvoice = []string{"trader invoice", "trader system invoice"}
	labelMerchant      = []string{"trader name", "merchant", "taxpayer name", "supplier name"}
	labelTotal         = []string{"total invoice amount", "total amount", "total taxable amount plus vat", "invoice amount"}
	labelTaxable       = []string{"taxable amount", "total taxable"}
	labelVAT           = []string{"vat", "tax amount"}
	labelDate          = []string{"invoice date", "date"}
)

var invoiceDateLayouts = []string{
	"02/01/2006",
	"02-01-2006",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"2006-01-02 15:04:05",
}

// parseInvoicePage walks every table row, matching label cells against the
// synonym sets and taking the last cell as the value.
func parseInvoicePage(body io.Reader) (*entity.AuthorityInvoice, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, err
	}

	inv := &entity.AuthorityInvoice{}
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td, th")
		if cells.Length() < 2 {
			return
		}
		label := strings.ToLower(strings.TrimSpace(cells.First().Text()))
		value := strings.TrimSpace(cells.Last().Text())
		if label == "" || value == "" {
			return
		}
		applyRow(inv, label, value)
	})

	// verified only when the two load-bearing fields are both present
	inv.Verified = inv.InvoiceNumber != "" && inv.TotalAmount != nil
	return inv, nil
}

// applyRow routes one label/value pair. Most-specific synonym sets are
// checked first: "trader invoice number" also contains "invoice number",
// and "total taxable amount plus vat" also contains "taxable amount".
func applyRow(inv *entity.AuthorityInvoice, label, value string) {
	switch {
	case matchesAny(label, labelTraderInvoice):
		if inv.TraderInvoiceNumber == "" {
			inv.TraderInvoiceNumber = value
		}
	case matchesAny(label, labelInvoiceNumber):
		if inv.InvoiceNumber == "" {
			inv.InvoiceNumber = value
		}
	case matchesAny(label, labelMerchant):
		if inv.MerchantName == "" {
			inv.MerchantName = value
		}
	case matchesAny(label, labelTotal):
		if inv.TotalAmount == nil {
			inv.TotalAmount = parseMoney(value)
		}
	case matchesAny(label, labelTaxable):
		if inv.TaxableAmount == nil {
			inv.TaxableAmount = parseMoney(value)
		}
	case matchesAny(label, labelVAT):
		if inv.VATAmount == nil {
			inv.VATAmount = parseMoney(value)
		}
	case matchesAny(label, labelDate):
		if inv.InvoiceDate.IsZero() {
			inv.InvoiceDate = parseInvoiceDate(value)
		}
	}
}

func matchesAny(label string, synonyms []string) bool {
	for _, s := range synonyms {
		if strings.Contains(label, s) {
			return true
		}
	}
	return false
}

// parseMoney strips currency markers and commas, then parses as decimal.
// Unparsable amounts stay absent rather than defaulting to zero.
func parseMoney(s string) *float64 {
	s = strings.TrimSpace(s)
	for _, marker := range []string{"KES", "Kes", "kes", "KSH", "Ksh", "ksh", "Kshs", "kshs", "/="} {
		s = strings.ReplaceAll(s, marker, "")
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}

func parseInvoiceDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range invoiceDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
