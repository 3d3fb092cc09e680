package mapper

import (
	"fondos/internal/catalog"
	"fondos/internal/domain"
	"fondos/internal/normalize"
	"fondos/internal/workbook"
)

// CatalogSeed holds the entries read from one master catalog sheet.
type CatalogSeed struct {
	Dimension domain.Dimension
	Sheet     string
	// Bound is false when the sheet has no description column; Entries is
	// then empty.
	Bound   bool
	Entries []catalog.SeedEntry
}

// ReadCatalogSheets reads every master catalog sheet of wb. The primary data
// sheet is never taken as a catalog sheet, even when its name matches.
func ReadCatalogSheets(wb *workbook.Workbook, primary *workbook.Sheet) []CatalogSeed {
	var seeds []CatalogSeed
	for _, cs := range CatalogSheets {
		sheet, ok := wb.FindSheet(cs.Aliases...)
		if !ok || sheet == primary {
			continue
		}
		seed := CatalogSeed{Dimension: cs.Dimension, Sheet: sheet.Name}
		table := sheet.Table(CatalogColumns, "description")
		if !table.Binding.Has("description") {
			seeds = append(seeds, seed)
			continue
		}

		seed.Bound = true
		seed.Entries = make([]catalog.SeedEntry, 0, len(table.Rows))
		for _, row := range table.Rows {
			e := catalog.SeedEntry{Description: table.Binding.Cell(row, "description").Text()}
			if n, ok := normalize.ToInteger(table.Binding.Cell(row, "number").Raw); ok && n > 0 {
				num := int(n)
				e.Number = &num
			}
			seed.Entries = append(seed.Entries, e)
		}
		seeds = append(seeds, seed)
	}
	return seeds
}
