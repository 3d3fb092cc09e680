package normalize

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var thousandsSeparators = strings.NewReplacer(",", "", "'", "", " ", "", "_", "", "\u00a0", "")

// ToInteger parses an integer from the leading digits of raw, ignoring
// thousands separators. "1,234" is 1234, "42.0" is 42 and "12 alumnos" is 12.
// The boolean is false when raw is blank or has no leading digit.
func ToInteger(raw string) (int64, bool) {
	s := thousandsSeparators.Replace(strings.TrimSpace(raw))
	if s == "" {
		return 0, false
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return int64(f), true
	}

	end := 0
	if s[0] == '-' || s[0] == '+' {
		end = 1
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0, false
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ToDecimal parses a currency-formatted amount such as "S/ 1,200.50". It
// keeps only digits, '.' and '-' and returns zero when nothing parseable is
// left, so a missing amount never breaks a sum.
func ToDecimal(raw string) decimal.Decimal {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero
	}
	if d, err := decimal.NewFromString(s); err == nil {
		return d
	}

	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	d, err := decimal.NewFromString(b.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ToMoney is ToDecimal as a float64.
func ToMoney(raw string) float64 {
	return ToDecimal(raw).InexactFloat64()
}
