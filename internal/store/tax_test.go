package store

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestVATIncludedTax(t *testing.T) {
	tests := []struct {
		name  string
		gross string
		rate  string
		want  string
	}{
		{name: "german_standard_rate", gross: "200.00", rate: "19", want: "31.93"},
		{name: "reduced_rate", gross: "107.00", rate: "7", want: "7.00"},
		{name: "zero_rate", gross: "200.00", rate: "0", want: "0"},
		{name: "negative_rate", gross: "100.00", rate: "-5", want: "0"},
		{name: "zero_gross", gross: "0.00", rate: "19", want: "0"},
		{name: "rounds_to_cents", gross: "9.99", rate: "19", want: "1.60"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gross := decimal.RequireFromString(tt.gross)
			rate := decimal.RequireFromString(tt.rate)
			want := decimal.RequireFromString(tt.want)

			got := VATIncludedTax(gross, rate)
			assert.True(t, want.Equal(got), "want %s, got %s", want, got)
		})
	}
}

func TestVATIncludedTaxZeroRateIsExactZero(t *testing.T) {
	got := VATIncludedTax(decimal.RequireFromString("123.45"), decimal.Zero)
	assert.True(t, got.IsZero())
}

func TestGrossLineTotal(t *testing.T) {
	got := GrossLineTotal(decimal.RequireFromString("100.00"), 2)
	assert.True(t, decimal.RequireFromString("200.00").Equal(got))

	got = GrossLineTotal(decimal.RequireFromString("3.333"), 3)
	assert.True(t, decimal.RequireFromString("10.00").Equal(got), "got %s", got)
}
