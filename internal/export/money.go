package export

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Rupees переводит минорные единицы (пайсы) в рупии.
func Rupees(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// FormatINR форматирует сумму в индийской группировке разрядов: ₹1,20,000.50.
func FormatINR(minor int64) string {
	return "₹" + groupIndian(Rupees(minor))
}

// FormatINRPlain — то же без знака рупии (встроенные PDF-шрифты не содержат ₹).
func FormatINRPlain(minor int64) string {
	return "Rs. " + groupIndian(Rupees(minor))
}

func groupIndian(amount decimal.Decimal) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}
	text := amount.StringFixed(2)
	intPart, frac, _ := strings.Cut(text, ".")

	if len(intPart) <= 3 {
		return sign + intPart + "." + frac
	}
	head, tail := intPart[:len(intPart)-3], intPart[len(intPart)-3:]
	var groups []string
	for len(head) > 2 {
		groups = append([]string{head[len(head)-2:]}, groups...)
		head = head[:len(head)-2]
	}
	groups = append([]string{head}, groups...)
	return sign + strings.Join(groups, ",") + "," + tail + "." + frac
}
