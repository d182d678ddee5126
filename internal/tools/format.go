package tools

import (
	"fmt"
	"math"
	"strings"
)

// FormatVND renders an amount with dot thousand grouping, the way Vietnamese
// banking sites print money.
func FormatVND(amount float64) string {
	n := int64(math.Round(amount))
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	s := fmt.Sprintf("%d", n)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return sign + b.String()
}

func formatRate(rate float64) string {
	s := fmt.Sprintf("%.2f", rate)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return strings.ReplaceAll(s, ".", ",")
}

func formatTermYears(years float64) string {
	if years == math.Trunc(years) {
		return fmt.Sprintf("%d năm", int(years))
	}
	months := int(math.Round(years * 12))
	return fmt.Sprintf("%d tháng", months)
}
