package wallet

import "testing"

func TestIsValidAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    bool
	}{
		{"pool address", GenerateDepositAddress(), true},
		{"wrong prefix", "LN27evh4WA8bDgvUwQeRgRct8fwaTaKqrT", false},
		{"too short", "D12345", false},
		{"too long", "DN27evh4WA8bDgvUwQeRgRct8fwaTaKqrTXX", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidAddress(tt.address); got != tt.want {
				t.Errorf("IsValidAddress(%q) = %v, want %v", tt.address, got, tt.want)
			}
		})
	}
}

func TestFormatDoge(t *testing.T) {
	if got := FormatDoge(1234.5); got != "1234.50 DOGE" {
		t.Errorf("FormatDoge(1234.5) = %q", got)
	}
}

func TestFormatMultiplier(t *testing.T) {
	if got := FormatMultiplier(2.5); got != "2.50x" {
		t.Errorf("FormatMultiplier(2.5) = %q", got)
	}
}
