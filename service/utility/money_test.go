package utility

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	parsed, err := decimal.NewFromString(value)
	require.NoError(t, err)
	return parsed
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		expected  string
		expectErr bool
	}{
		{name: "plain number", input: "100", expected: "100"},
		{name: "two decimal places", input: "1234.50", expected: "1234.5"},
		{name: "thousands separators", input: "1,234.50", expected: "1234.5"},
		{name: "cedi symbol", input: "GH₵50.00", expected: "50"},
		{name: "currency code", input: "GHS 2,500", expected: "2500"},
		{name: "dollar symbol", input: "$99.99", expected: "99.99"},
		{name: "rounds half up", input: "10.005", expected: "10.01"},
		{name: "negative amount", input: "-15.25", expected: "-15.25"},
		{name: "empty string", input: "", expectErr: true},
		{name: "only symbol", input: "GH₵", expectErr: true},
		{name: "garbage", input: "abc", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.expectErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnparsableAmount)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(d(t, tt.expected)), "got %s want %s", got, tt.expected)
		})
	}
}

func TestParseAmountOrZero(t *testing.T) {
	assert.True(t, ParseAmountOrZero("not a number").IsZero())
	assert.True(t, ParseAmountOrZero("25.50").Equal(d(t, "25.5")))
}

func TestFormatAmountRoundTrips(t *testing.T) {
	tests := []string{"0", "5", "999.99", "1234.5", "1234567.89", "-1234.5"}

	for _, value := range tests {
		t.Run(value, func(t *testing.T) {
			amount := d(t, value)
			formatted := FormatAmount(amount)
			parsed, err := ParseAmount(formatted)
			require.NoError(t, err)
			assert.True(t, parsed.Equal(RoundAmount(amount)),
				"%s formatted as %s parsed back as %s", value, formatted, parsed)
		})
	}

	assert.Equal(t, "1,234.50", FormatAmount(d(t, "1234.5")))
	assert.Equal(t, "1,234,567.89", FormatAmount(d(t, "1234567.89")))
	assert.Equal(t, "-1,000.00", FormatAmount(d(t, "-1000")))
	assert.Equal(t, "0.00", FormatAmount(decimal.Zero))
}

func TestApplyDiscount(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		percent  string
		fixed    string
		expected string
	}{
		{name: "no discount", amount: "100", percent: "0", fixed: "0", expected: "100"},
		{name: "percent only", amount: "200", percent: "10", fixed: "0", expected: "180"},
		{name: "fixed only", amount: "100", percent: "0", fixed: "25", expected: "75"},
		{name: "percent then fixed", amount: "200", percent: "50", fixed: "30", expected: "70"},
		{name: "fixed exceeds remainder", amount: "100", percent: "90", fixed: "50", expected: "0"},
		{name: "full percent discount", amount: "100", percent: "100", fixed: "0", expected: "0"},
		{name: "never negative", amount: "10", percent: "0", fixed: "100", expected: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyDiscount(d(t, tt.amount), d(t, tt.percent), d(t, tt.fixed))
			assert.True(t, got.Equal(d(t, tt.expected)), "got %s want %s", got, tt.expected)
		})
	}
}

func TestApplyTax(t *testing.T) {
	tax, total := ApplyTax(d(t, "100"), d(t, "12.5"))
	assert.True(t, tax.Equal(d(t, "12.5")))
	assert.True(t, total.Equal(d(t, "112.5")))
}

func TestValidatePayment(t *testing.T) {
	tolerance := DefaultTolerance()

	tests := []struct {
		name            string
		payable         string
		paid            string
		valid           bool
		wantOverpayment string
	}{
		{name: "exact payment", payable: "100", paid: "100", valid: true, wantOverpayment: "0"},
		{name: "within tolerance under", payable: "100", paid: "99.99", valid: true, wantOverpayment: "0"},
		{name: "within tolerance over", payable: "100", paid: "100.01", valid: true, wantOverpayment: "0"},
		{name: "underpayment", payable: "100", paid: "60", valid: false, wantOverpayment: "0"},
		{name: "overpayment reported", payable: "100", paid: "120", valid: true, wantOverpayment: "20"},
		{name: "negative paid rejected", payable: "100", paid: "-5", valid: false, wantOverpayment: "0"},
		{name: "zero payable rejected", payable: "0", paid: "10", valid: false, wantOverpayment: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, _, overpayment := ValidatePayment(d(t, tt.payable), d(t, tt.paid), tolerance)
			assert.Equal(t, tt.valid, valid)
			assert.True(t, overpayment.Equal(d(t, tt.wantOverpayment)),
				"overpayment got %s want %s", overpayment, tt.wantOverpayment)
		})
	}
}
