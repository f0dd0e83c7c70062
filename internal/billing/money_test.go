package billing

import "testing"

func TestCalculate(t *testing.T) {
	t.Parallel()

	t.Run("total equals subtotal minus discount plus tax", func(t *testing.T) {
		items := []LineItem{
			{Description: "Spring semester seat", UnitPriceCents: 100000, Quantity: 2, VATRateBasisPoints: 2100},
			{Description: "Workshop ticket", UnitPriceCents: 4500, Quantity: 3, DiscountCents: 1500, VATRateBasisPoints: 900},
		}
		got := Calculate(items, "EUR")

		if got.SubtotalCents != 213500 {
			t.Fatalf("subtotal = %d, want 213500", got.SubtotalCents)
		}
		if got.DiscountCents != 1500 {
			t.Fatalf("discount = %d, want 1500", got.DiscountCents)
		}
		wantTax := int64(42000 + 1080) // 21% of 200000, 9% of 12000
		if got.TaxCents != wantTax {
			t.Fatalf("tax = %d, want %d", got.TaxCents, wantTax)
		}
		if got.TotalCents != got.SubtotalCents-got.DiscountCents+got.TaxCents {
			t.Fatalf("total invariant broken: %+v", got)
		}
		if got.Currency != "EUR" {
			t.Fatalf("currency = %q", got.Currency)
		}
	})

	t.Run("breakdown groups by rate", func(t *testing.T) {
		items := []LineItem{
			{UnitPriceCents: 1000, Quantity: 1, VATRateBasisPoints: 2100},
			{UnitPriceCents: 2000, Quantity: 1, VATRateBasisPoints: 2100},
			{UnitPriceCents: 5000, Quantity: 1, VATRateBasisPoints: 0},
		}
		got := Calculate(items, "EUR")

		if len(got.VATBreakdown) != 2 {
			t.Fatalf("breakdown lines = %d, want 2", len(got.VATBreakdown))
		}
		if got.VATBreakdown[0].RateBasisPoints != 2100 || got.VATBreakdown[0].BaseCents != 3000 || got.VATBreakdown[0].TaxCents != 630 {
			t.Fatalf("first breakdown line = %+v", got.VATBreakdown[0])
		}
		if got.VATBreakdown[1].RateBasisPoints != 0 || got.VATBreakdown[1].TaxCents != 0 {
			t.Fatalf("second breakdown line = %+v", got.VATBreakdown[1])
		}
	})

	t.Run("discount capped at line gross", func(t *testing.T) {
		got := Calculate([]LineItem{{UnitPriceCents: 1000, Quantity: 1, DiscountCents: 5000, VATRateBasisPoints: 2100}}, "EUR")
		if got.DiscountCents != 1000 {
			t.Fatalf("discount = %d, want 1000", got.DiscountCents)
		}
		if got.TotalCents != 0 {
			t.Fatalf("total = %d, want 0", got.TotalCents)
		}
	})

	t.Run("tax rounds half up", func(t *testing.T) {
		// 21% of 1 cent = 0.21 -> 0; 21% of 3 cents = 0.63 -> 1.
		if got := Calculate([]LineItem{{UnitPriceCents: 1, Quantity: 1, VATRateBasisPoints: 2100}}, "EUR"); got.TaxCents != 0 {
			t.Fatalf("tax on 1 cent = %d, want 0", got.TaxCents)
		}
		if got := Calculate([]LineItem{{UnitPriceCents: 3, Quantity: 1, VATRateBasisPoints: 2100}}, "EUR"); got.TaxCents != 1 {
			t.Fatalf("tax on 3 cents = %d, want 1", got.TaxCents)
		}
	})
}

func TestSplitEvenly(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		total int64
		parts int
		want  []int64
	}{
		{"even split", 200000, 2, []int64{100000, 100000}},
		{"remainder goes to first parts", 100, 3, []int64{34, 33, 33}},
		{"single part", 999, 1, []int64{999}},
		{"zero total", 0, 4, []int64{0, 0, 0, 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SplitEvenly(tc.total, tc.parts)
			if len(got) != len(tc.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tc.want))
			}
			var sum int64
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("part %d = %d, want %d", i, got[i], tc.want[i])
				}
				sum += got[i]
			}
			if sum != tc.total {
				t.Fatalf("parts sum to %d, want %d", sum, tc.total)
			}
		})
	}

	if got := SplitEvenly(100, 0); got != nil {
		t.Fatalf("expected nil for zero parts, got %v", got)
	}
}
