package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ExcelSerialToISODate converts an Excel 1900-system day serial into a
// "YYYY-MM-DD" date. The time-of-day fraction is discarded.
func ExcelSerialToISODate(serial float64) (string, bool) {
	if math.IsNaN(serial) || math.IsInf(serial, 0) || serial < 1 {
		return "", false
	}
	t, err := excelize.ExcelDateToTime(math.Floor(serial), false)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", t.Year(), int(t.Month()), t.Day()), true
}

// DateCell turns a milestone cell into a date string. Numeric cells are Excel
// serials; text cells are passed through trimmed.
func DateCell(raw string, numeric bool) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	if numeric {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return "", false
		}
		return ExcelSerialToISODate(f)
	}
	return s, true
}

// Month abbreviations as they appear in schedule headers. "set" is the older
// spelling of septiembre still found in some workbooks.
var monthAbbreviations = map[string]int{
	"ene": 1,
	"feb": 2,
	"mar": 3,
	"abr": 4,
	"may": 5,
	"jun": 6,
	"jul": 7,
	"ago": 8,
	"sep": 9,
	"set": 9,
	"oct": 10,
	"nov": 11,
	"dic": 12,
}

var monthYearPattern = regexp.MustCompile(`^([a-z]{3})[-/._ ]+(\d{4}|\d{2})$`)

// ParseMonthYearHeader recognizes schedule headers like "Ago-25" or
// "Set 2024" and returns the first day of that month as "YYYY-MM-01".
// Two-digit years are read as 2000+YY. Any other header yields false.
func ParseMonthYearHeader(header string) (string, bool) {
	m := monthYearPattern.FindStringSubmatch(MatchKey(header))
	if m == nil {
		return "", false
	}
	month, ok := monthAbbreviations[m[1]]
	if !ok {
		return "", false
	}
	year, err := strconv.Atoi(m[2])
	if err != nil {
		return "", false
	}
	if len(m[2]) == 2 {
		year += 2000
	}
	return fmt.Sprintf("%04d-%02d-01", year, month), true
}
