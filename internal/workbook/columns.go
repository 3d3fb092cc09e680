package workbook

import "fondos/internal/normalize"

// Column names a canonical field and the header spellings accepted for it.
type Column struct {
	Field   string
	Aliases []string
}

// Columns is a declarative header mapping consulted by Bind.
type Columns []Column

// Binding maps a canonical field to its column index in a header row.
type Binding map[string]int

// Bind matches headers against the alias lists. Comparison uses
// normalize.HeaderKey, so casing, accents and punctuation are ignored. Each
// header binds to at most one field and the first matching header wins.
func (cols Columns) Bind(headers []string) Binding {
	keys := make([]string, len(headers))
	for i, h := range headers {
		keys[i] = normalize.HeaderKey(h)
	}

	b := Binding{}
	taken := make(map[int]bool, len(headers))
	for _, col := range cols {
		for _, alias := range col.Aliases {
			want := normalize.HeaderKey(alias)
			idx := -1
			for i, k := range keys {
				if k != "" && k == want && !taken[i] {
					idx = i
					break
				}
			}
			if idx >= 0 {
				b[col.Field] = idx
				taken[idx] = true
				break
			}
		}
	}
	return b
}

// Has reports whether field was found in the headers.
func (b Binding) Has(field string) bool {
	_, ok := b[field]
	return ok
}

// Cell returns the row's cell for field, or an empty cell when unbound.
func (b Binding) Cell(r Row, field string) Cell {
	idx, ok := b[field]
	if !ok {
		return Cell{}
	}
	return r.Cell(idx)
}

// Bound reports whether column index i is bound to any field.
func (b Binding) Bound(i int) bool {
	for _, idx := range b {
		if idx == i {
			return true
		}
	}
	return false
}
