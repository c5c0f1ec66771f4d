package utility

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// All monetary arithmetic is done on decimals rounded half-up to two places.
const DecimalPlaces = 2

var ErrUnparsableAmount = errors.New("amount is not a valid monetary value")

// DefaultTolerance is the margin within which a payment counts as exact.
func DefaultTolerance() decimal.Decimal {
	return decimal.New(1, -2)
}

// currency symbols and codes stripped before parsing
var amountNoise = []string{"GH₵", "GHS", "USD", "EUR", "GBP", "₵", "$", "€", "£", ",", " ", " "}

// ParseAmount converts a numeric or currency-formatted string ("1,234.50",
// "GH₵50.00") to a two-place decimal. Malformed input is an error; callers
// that genuinely want a zero fallback must opt in via ParseAmountOrZero.
func ParseAmount(value string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(value)
	for _, noise := range amountNoise {
		cleaned = strings.ReplaceAll(cleaned, noise, "")
	}
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnparsableAmount, value)
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnparsableAmount, value)
	}
	return RoundAmount(d), nil
}

// ParseAmountOrZero is the explicit zero-default variant of ParseAmount,
// for display-only paths where a blank cell is acceptable. The payment
// engine must never use it.
func ParseAmountOrZero(value string) decimal.Decimal {
	d, err := ParseAmount(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// FormatAmount renders a decimal with thousands separators and two places,
// such that ParseAmount(FormatAmount(x)) == RoundAmount(x).
func FormatAmount(d decimal.Decimal) string {
	fixed := RoundAmount(d).StringFixed(DecimalPlaces)

	neg := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	parts := strings.SplitN(fixed, ".", 2)
	intPart := parts[0]

	var grouped strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(r)
	}

	out := grouped.String() + "." + parts[1]
	if neg {
		out = "-" + out
	}
	return out
}

// RoundAmount rounds half-up to two decimal places.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(DecimalPlaces)
}

// ApplyDiscount applies a percentage discount first, then a fixed discount,
// flooring at zero after each step. The result is never negative.
func ApplyDiscount(amount, percent, fixed decimal.Decimal) decimal.Decimal {
	result := RoundAmount(amount)

	if percent.GreaterThan(decimal.Zero) {
		discount := RoundAmount(result.Mul(percent).Div(decimal.NewFromInt(100)))
		result = result.Sub(discount)
		if result.IsNegative() {
			result = decimal.Zero
		}
	}

	result = result.Sub(RoundAmount(fixed))
	if result.IsNegative() {
		result = decimal.Zero
	}
	return result
}

// ApplyTax returns the tax portion and the grossed-up total for a rate
// expressed in percent.
func ApplyTax(amount, rate decimal.Decimal) (tax, total decimal.Decimal) {
	base := RoundAmount(amount)
	tax = RoundAmount(base.Mul(rate).Div(decimal.NewFromInt(100)))
	return tax, base.Add(tax)
}

// ValidatePayment checks paid against payable. Payments within tolerance of
// payable are treated as exact; amounts above payable report the overpayment
// delta. Negative paid or non-positive payable are rejected.
func ValidatePayment(payable, paid, tolerance decimal.Decimal) (bool, string, decimal.Decimal) {
	payable = RoundAmount(payable)
	paid = RoundAmount(paid)

	if paid.IsNegative() {
		return false, "payment amount cannot be negative", decimal.Zero
	}
	if !payable.GreaterThan(decimal.Zero) {
		return false, "payable amount must be positive", decimal.Zero
	}

	difference := payable.Sub(paid)
	if difference.Abs().LessThanOrEqual(tolerance) {
		return true, "payment complete", decimal.Zero
	}

	if paid.GreaterThan(payable) {
		overpayment := paid.Sub(payable)
		return true, fmt.Sprintf("payment complete with overpayment of %s", FormatAmount(overpayment)), overpayment
	}

	return false, fmt.Sprintf("payment incomplete, balance %s", FormatAmount(difference)), decimal.Zero
}
