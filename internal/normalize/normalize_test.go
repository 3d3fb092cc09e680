package normalize_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"fondos/internal/normalize"
)

func TestToInteger(t *testing.T) {
	tests := []struct {
		raw    string
		want   int64
		wantOK bool
	}{
		{"42", 42, true},
		{" 1,234 ", 1234, true},
		{"42.0", 42, true},
		{"12 alumnos", 12, true},
		{"-7", -7, true},
		{"", 0, false},
		{"   ", 0, false},
		{"abc", 0, false},
		{"NaN", 0, false},
		{"-", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := normalize.ToInteger(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToMoney(t *testing.T) {
	assert.InDelta(t, 1200.50, normalize.ToMoney("1,200.50"), 1e-9)
	assert.InDelta(t, 1200.50, normalize.ToMoney("S/ 1,200.50"), 1e-9)
	assert.InDelta(t, -35.0, normalize.ToMoney("-35"), 1e-9)
	assert.InDelta(t, 1500.0, normalize.ToMoney("1.5E+3"), 1e-9)
	assert.Equal(t, 0.0, normalize.ToMoney(""))
	assert.Equal(t, 0.0, normalize.ToMoney("-"))
	assert.Equal(t, 0.0, normalize.ToMoney("sin monto"))
}

func TestToDecimal_ExactSums(t *testing.T) {
	sum := normalize.ToDecimal("0.1").Add(normalize.ToDecimal("0.2"))
	assert.True(t, sum.Equal(decimal.RequireFromString("0.3")), "got %s", sum)

	assert.Equal(t, "1200.5", normalize.ToDecimal("S/ 1,200.50").String())
	assert.True(t, normalize.ToDecimal("n/a").IsZero())
}

func TestDisplayText(t *testing.T) {
	assert.Equal(t, "LINEA DE CAPACITACION", normalize.DisplayText("Línea  DE Capacitación "))
	assert.Equal(t, "PIURA", normalize.DisplayText("  piura"))
	assert.Equal(t, "", normalize.DisplayText("   "))
}

func TestMatchKey(t *testing.T) {
	assert.Equal(t, "linea de capacitacion", normalize.MatchKey("Línea  DE Capacitación "))
	assert.Equal(t, normalize.MatchKey("ÁNCASH"), normalize.MatchKey("ancash"))
	assert.Equal(t, normalize.MatchKey("San Martín"), normalize.MatchKey(" SAN   MARTIN "))
	assert.NotEqual(t, normalize.MatchKey("Lima"), normalize.MatchKey("Lima Metropolitana"))
}

func TestNormalization_Idempotent(t *testing.T) {
	inputs := []string{
		"Línea  DE Capacitación ",
		"ÑANDÚ",
		"Straße",
		"  \tmixed\nWhite  space ",
		"Émilie-Ôrléans",
		"",
		"123 ABC",
	}
	for _, in := range inputs {
		once := normalize.MatchKey(in)
		assert.Equal(t, once, normalize.MatchKey(once), "MatchKey(%q)", in)

		disp := normalize.DisplayText(in)
		assert.Equal(t, disp, normalize.DisplayText(disp), "DisplayText(%q)", in)
	}
}

func TestHeaderKey(t *testing.T) {
	assert.Equal(t, "n seq", normalize.HeaderKey("N° Seq."))
	assert.Equal(t, "n seq", normalize.HeaderKey("Nº SEQ"))
	assert.Equal(t, "monto fondoempleo", normalize.HeaderKey("Monto_Fondoempleo"))
	assert.Equal(t, "region", normalize.HeaderKey(" Región "))
}

func TestIsNoneSentinel(t *testing.T) {
	assert.True(t, normalize.IsNoneSentinel("Ninguno"))
	assert.True(t, normalize.IsNoneSentinel(" NINGUNA "))
	assert.True(t, normalize.IsNoneSentinel("Sin código"))
	assert.True(t, normalize.IsNoneSentinel("N/A"))
	assert.False(t, normalize.IsNoneSentinel("SC-2024-01"))
	assert.False(t, normalize.IsNoneSentinel(""))
}

func TestExcelSerialToISODate(t *testing.T) {
	got, ok := normalize.ExcelSerialToISODate(45597)
	assert.True(t, ok)
	assert.Equal(t, "2024-11-01", got)

	got, ok = normalize.ExcelSerialToISODate(43831.75)
	assert.True(t, ok)
	assert.Equal(t, "2020-01-01", got)

	got, ok = normalize.ExcelSerialToISODate(45292)
	assert.True(t, ok)
	assert.Equal(t, "2024-01-01", got)

	_, ok = normalize.ExcelSerialToISODate(0)
	assert.False(t, ok)
	_, ok = normalize.ExcelSerialToISODate(-3)
	assert.False(t, ok)
}

func TestDateCell(t *testing.T) {
	got, ok := normalize.DateCell("45597", true)
	assert.True(t, ok)
	assert.Equal(t, "2024-11-01", got)

	got, ok = normalize.DateCell("  15/03/2024 ", false)
	assert.True(t, ok)
	assert.Equal(t, "15/03/2024", got)

	_, ok = normalize.DateCell("   ", false)
	assert.False(t, ok)
	_, ok = normalize.DateCell("abc", true)
	assert.False(t, ok)
}

func TestParseMonthYearHeader(t *testing.T) {
	tests := []struct {
		header string
		want   string
		wantOK bool
	}{
		{"Ago-25", "2025-08-01", true},
		{"ENE-2024", "2024-01-01", true},
		{"set 24", "2024-09-01", true},
		{"Sep/2023", "2023-09-01", true},
		{"dic.25", "2025-12-01", true},
		{"Revisión", "", false},
		{"Agosto-25", "", false},
		{"Ago25", "", false},
		{"Xyz-25", "", false},
		{"Ago-202", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := normalize.ParseMonthYearHeader(tt.header)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
