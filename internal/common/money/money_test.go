package money

import (
	"encoding/json"
	"testing"
)

func TestNewFromMajor(t *testing.T) {
	tests := []struct {
		name      string
		major     float64
		currency  Currency
		wantMinor int64
	}{
		{"whole naira", 500, NGN, 50000},
		{"naira with kobo", 199.99, NGN, 19999},
		{"rounds half up", 0.005, NGN, 1},
		{"zero", 0, NGN, 0},
		{"typical airtime amount", 200, NGN, 20000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewFromMajor(tt.major, tt.currency)
			if got.AmountMinor != tt.wantMinor {
				t.Fatalf("NewFromMajor(%v) minor = %d, want %d", tt.major, got.AmountMinor, tt.wantMinor)
			}
			if got.Currency != tt.currency {
				t.Fatalf("NewFromMajor(%v) currency = %s, want %s", tt.major, got.Currency, tt.currency)
			}
		})
	}
}

func TestAddSub(t *testing.T) {
	a := New(50000, NGN)
	b := New(19999, NGN)

	sum, err := a.Add(b)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if sum.AmountMinor != 69999 {
		t.Fatalf("Add = %d, want 69999", sum.AmountMinor)
	}

	diff, err := a.Sub(b)
	if err != nil {
		t.Fatalf("Sub: %v", err)
	}
	if diff.AmountMinor != 30001 {
		t.Fatalf("Sub = %d, want 30001", diff.AmountMinor)
	}

	if _, err := a.Add(New(100, USD)); err == nil {
		t.Fatal("Add across currencies should fail")
	}
	if _, err := a.Sub(New(100, USD)); err == nil {
		t.Fatal("Sub across currencies should fail")
	}
}

func TestComparisons(t *testing.T) {
	small := New(100, NGN)
	big := New(200, NGN)

	if !big.GreaterThan(small) {
		t.Fatal("200 should be greater than 100")
	}
	if !small.LessThan(big) {
		t.Fatal("100 should be less than 200")
	}
	if !small.Equal(New(100, NGN)) {
		t.Fatal("equal amounts should be Equal")
	}
	if small.Equal(New(100, USD)) {
		t.Fatal("same minor amount in another currency is not Equal")
	}
	if small.GreaterThan(New(1, USD)) {
		t.Fatal("cross-currency GreaterThan must be false")
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		name        string
		amount      int64
		basisPoints int64
		want        int64
	}{
		{"one percent", 10000, 100, 100},
		{"one and a half percent", 10000, 150, 150},
		{"rounds", 333, 100, 3},
		{"zero", 10000, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.amount, NGN).Percentage(tt.basisPoints)
			if got.AmountMinor != tt.want {
				t.Fatalf("Percentage(%d) = %d, want %d", tt.basisPoints, got.AmountMinor, tt.want)
			}
		})
	}
}

func TestToMajorRoundTrip(t *testing.T) {
	m := New(19999, NGN)
	if got := m.ToMajor(); got != 199.99 {
		t.Fatalf("ToMajor = %v, want 199.99", got)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	original := New(50000, NGN)

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Money
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Equal(original) {
		t.Fatalf("round trip changed value: %+v != %+v", decoded, original)
	}
}

func TestSum(t *testing.T) {
	total, err := Sum(New(100, NGN), New(200, NGN), New(300, NGN))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	if total.AmountMinor != 600 {
		t.Fatalf("Sum = %d, want 600", total.AmountMinor)
	}

	if _, err := Sum(New(100, NGN), New(200, USD)); err == nil {
		t.Fatal("Sum across currencies should fail")
	}
}
