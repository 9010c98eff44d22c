package rates

import (
	"testing"

	"github.com/veilcare/settlement-backend/pkg/config"
	"github.com/veilcare/settlement-backend/pkg/enums"
)

func TestNewConverterValidation(t *testing.T) {
	if _, err := NewConverter(config.RatesConfig{Asset: "DOGE", USDCentsPerWhole: "100"}); err == nil {
		t.Fatal("expected error for unknown asset")
	}
	if _, err := NewConverter(config.RatesConfig{Asset: "ETH", USDCentsPerWhole: "abc"}); err == nil {
		t.Fatal("expected error for malformed rate")
	}
	if _, err := NewConverter(config.RatesConfig{Asset: "ETH", USDCentsPerWhole: "0"}); err == nil {
		t.Fatal("expected error for zero rate")
	}
}

func TestToBaseUnits(t *testing.T) {
	// 1 ETH = $2500.00
	conv, err := NewConverter(config.RatesConfig{Asset: "ETH", USDCentsPerWhole: "250000"})
	if err != nil {
		t.Fatalf("NewConverter: %v", err)
	}
	if conv.Asset() != enums.AssetETH {
		t.Fatalf("unexpected asset %s", conv.Asset())
	}

	cases := []struct {
		name        string
		amountCents int
		want        string
	}{
		{"exact whole unit", 250000, "1000000000000000000"},
		{"one dollar", 100, "400000000000000"},
		{"one cent", 1, "4000000000000"},
		{"large invoice", 1250000, "5000000000000000000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := conv.ToBaseUnits(tc.amountCents, enums.CurrencyUSD)
			if err != nil {
				t.Fatalf("ToBaseUnits: %v", err)
			}
			if got.String() != tc.want {
				t.Fatalf("expected %s wei, got %s", tc.want, got)
			}
		})
	}
}

func TestToBaseUnitsTruncatesRemainder(t *testing.T) {
	// 3 cents against a rate of 7 cents per whole unit leaves a remainder;
	// the sub-wei fraction must be dropped, never rounded up.
	conv, err := NewConverter(config.RatesConfig{Asset: "ETH", USDCentsPerWhole: "7"})
	if err != nil {
		t.Fatalf("NewConverter: %v", err)
	}
	got, err := conv.ToBaseUnits(3, enums.CurrencyUSD)
	if err != nil {
		t.Fatalf("ToBaseUnits: %v", err)
	}
	// 3e18/7 = 428571428571428571.428..., truncated
	if got.String() != "428571428571428571" {
		t.Fatalf("expected truncated quotient, got %s", got)
	}
}

func TestToBaseUnitsRejectsBadInput(t *testing.T) {
	conv, err := NewConverter(config.RatesConfig{Asset: "ETH", USDCentsPerWhole: "250000"})
	if err != nil {
		t.Fatalf("NewConverter: %v", err)
	}
	if _, err := conv.ToBaseUnits(0, enums.CurrencyUSD); err == nil {
		t.Fatal("expected error for zero amount")
	}
	if _, err := conv.ToBaseUnits(100, enums.CurrencyEUR); err == nil {
		t.Fatal("expected error for unsupported currency")
	}
}
