package math_test

import (
	"testing"

	fpmath "PaperFolio/internal/math"
)

func TestComputeAvgEntryPrice_FromFlat(t *testing.T) {
	got := fpmath.ComputeAvgEntryPrice(0, 0, 1_000_000, 10_000)
	if got != 10_000 {
		t.Errorf("got %d, want 10_000", got)
	}
}

func TestComputeAvgEntryPrice_Weighted(t *testing.T) {
	// 0.5 @ 100.00 extended by 0.5 @ 90.00 -> 95.00
	got := fpmath.ComputeAvgEntryPrice(500_000, 10_000, 500_000, 9_000)
	if got != 9_500 {
		t.Errorf("got %d, want 9_500", got)
	}
}

func TestComputeRealizedPnL_Long(t *testing.T) {
	// close 10 units of a long: (110.00 - 100.00) * 10 = 100.000000
	got := fpmath.ComputeRealizedPnL(1, 11_000, 10_000, 10_000_000)
	if got != 100_000_000 {
		t.Errorf("got %d, want 100_000_000", got)
	}
}

func TestComputeRealizedPnL_Short(t *testing.T) {
	// close 2 units of a short entered at 100.00, exit 90.00: +20.000000
	got := fpmath.ComputeRealizedPnL(-1, 9_000, 10_000, 2_000_000)
	if got != 20_000_000 {
		t.Errorf("got %d, want 20_000_000", got)
	}
}

func TestComputeNotional(t *testing.T) {
	// 0.5 * 120.00 = 60.000000
	got := fpmath.ComputeNotional(500_000, 12_000)
	if got != 60_000_000 {
		t.Errorf("got %d, want 60_000_000", got)
	}
}

func TestApportionFee(t *testing.T) {
	cases := []struct {
		name                   string
		fee, matched, total    int64
		want                   int64
	}{
		{"full close", 300_000, 1_000_000, 1_000_000, 300_000},
		{"two thirds", 300_000, 2_000_000, 3_000_000, 200_000},
		{"nothing matched", 300_000, 0, 1_000_000, 0},
		{"zero total", 300_000, 1, 0, 0},
	}

	for _, tc := range cases {
		if got := fpmath.ApportionFee(tc.fee, tc.matched, tc.total); got != tc.want {
			t.Errorf("%s: got %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestParseScaled_RoundTrip(t *testing.T) {
	v, err := fpmath.ParsePrice("95.50")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v != 9_550 {
		t.Errorf("got %d, want 9_550", v)
	}
	if s := fpmath.FormatPrice(v); s != "95.50" {
		t.Errorf("format: got %q, want %q", s, "95.50")
	}
}

func TestParseScaled_ExcessPrecisionRejected(t *testing.T) {
	if _, err := fpmath.ParsePrice("95.505"); err == nil {
		t.Error("expected error for price with more than 2 decimal places")
	}
}

func TestParseScaled_Garbage(t *testing.T) {
	if _, err := fpmath.ParseQuantity("not-a-number"); err == nil {
		t.Error("expected error for unparsable decimal")
	}
}

func TestDivideInt128_BankersRounding(t *testing.T) {
	// 5 / 2 = 2.5 -> rounds to even 2; 7 / 2 = 3.5 -> rounds to even 4
	if got := fpmath.DivideInt128(fpmath.MultiplyInt128(5, 1), 2, fpmath.RoundHalfEven); got != 2 {
		t.Errorf("5/2: got %d, want 2", got)
	}
	if got := fpmath.DivideInt128(fpmath.MultiplyInt128(7, 1), 2, fpmath.RoundHalfEven); got != 4 {
		t.Errorf("7/2: got %d, want 4", got)
	}
}
