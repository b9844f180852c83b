// utils/format.go
package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatThousands rounds value half away from zero to the given number of
// decimal places and groups the integer digits in threes with commas,
// e.g. 1234567.891 with places=0 becomes "1,234,568".
func FormatThousands(value decimal.Decimal, places int32) string {
	if places < 0 {
		places = 0
	}
	s := value.StringFixed(places)

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign = "-"
		s = s[1:]
	}

	intPart, fracPart := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i:]
	}
	// "-0" after rounding is printed without the sign.
	if strings.Trim(intPart, "0") == "" && strings.Trim(fracPart, ".0") == "" {
		sign = ""
	}

	var b strings.Builder
	b.WriteString(sign)
	lead := len(intPart) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(intPart[:lead])
	for i := lead; i < len(intPart); i += 3 {
		b.WriteByte(',')
		b.WriteString(intPart[i : i+3])
	}
	b.WriteString(fracPart)
	return b.String()
}
