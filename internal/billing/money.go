// Package billing computes order monetary snapshots. All amounts are integer
// cents; VAT rates are basis points (2100 = 21%).
package billing

// LineItem is one priced position on an order.
type LineItem struct {
	Description        string `json:"description"`
	UnitPriceCents     int64  `json:"unit_price_cents"`
	Quantity           int    `json:"quantity"`
	DiscountCents      int64  `json:"discount_cents"` // absolute discount on the whole line
	VATRateBasisPoints int64  `json:"vat_rate_basis_points"`
}

// GrossCents returns the line amount before discount.
func (l LineItem) GrossCents() int64 {
	return l.UnitPriceCents * int64(l.Quantity)
}

// VATLine is the tax collected at one rate.
type VATLine struct {
	RateBasisPoints int64 `json:"rate_basis_points"`
	BaseCents       int64 `json:"base_cents"`
	TaxCents        int64 `json:"tax_cents"`
}

// Totals is the monetary snapshot for an order: Total = Subtotal - Discount + Tax.
type Totals struct {
	SubtotalCents int64     `json:"subtotal_cents"`
	DiscountCents int64     `json:"discount_cents"`
	TaxCents      int64     `json:"tax_cents"`
	TotalCents    int64     `json:"total_cents"`
	Currency      string    `json:"currency"`
	VATBreakdown  []VATLine `json:"vat_breakdown"`
}

// Calculate computes the snapshot for a set of line items. Tax is computed per
// line on the discounted base with half-up rounding, then grouped by rate for
// the breakdown.
func Calculate(items []LineItem, currency string) Totals {
	t := Totals{Currency: currency}
	byRate := make(map[int64]*VATLine)
	var rates []int64

	for _, item := range items {
		gross := item.GrossCents()
		discount := item.DiscountCents
		if discount > gross {
			discount = gross
		}
		base := gross - discount
		tax := roundHalfUp(base*item.VATRateBasisPoints, 10000)

		t.SubtotalCents += gross
		t.DiscountCents += discount
		t.TaxCents += tax

		line, ok := byRate[item.VATRateBasisPoints]
		if !ok {
			line = &VATLine{RateBasisPoints: item.VATRateBasisPoints}
			byRate[item.VATRateBasisPoints] = line
			rates = append(rates, item.VATRateBasisPoints)
		}
		line.BaseCents += base
		line.TaxCents += tax
	}

	for _, r := range rates {
		t.VATBreakdown = append(t.VATBreakdown, *byRate[r])
	}
	t.TotalCents = t.SubtotalCents - t.DiscountCents + t.TaxCents
	return t
}

// SplitEvenly divides totalCents into parts that always sum exactly to the
// total: every part gets the floor share and the remainder cents go to the
// first parts in order. Returns nil if parts <= 0.
func SplitEvenly(totalCents int64, parts int) []int64 {
	if parts <= 0 {
		return nil
	}
	share := totalCents / int64(parts)
	rem := totalCents % int64(parts)
	out := make([]int64, parts)
	for i := range out {
		out[i] = share
		if int64(i) < rem {
			out[i]++
		}
	}
	return out
}

// roundHalfUp divides num by den rounding half away from zero.
// Both operands are expected non-negative.
func roundHalfUp(num, den int64) int64 {
	return (num + den/2) / den
}
