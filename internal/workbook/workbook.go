// Package workbook decodes spreadsheet files into sheets of typed cells.
package workbook

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"fondos/internal/domain"
	"fondos/internal/normalize"
)

// headerScanDepth is how many leading rows are searched for the header row.
const headerScanDepth = 10

// Cell is one raw cell value. Numeric is set for cells stored as numbers
// (including dates, which arrive as Excel serials).
type Cell struct {
	Raw     string
	Numeric bool
}

// Text returns the trimmed cell value.
func (c Cell) Text() string {
	return strings.TrimSpace(c.Raw)
}

// Blank reports whether the cell holds nothing but whitespace.
func (c Cell) Blank() bool {
	return c.Text() == ""
}

// Row is a spreadsheet row. Ordinal is the 1-based row number in the sheet.
type Row struct {
	Ordinal int
	Cells   []Cell
}

// Cell returns the cell at column index i, or an empty cell past the end.
func (r Row) Cell(i int) Cell {
	if i < 0 || i >= len(r.Cells) {
		return Cell{}
	}
	return r.Cells[i]
}

func (r Row) blank() bool {
	for _, c := range r.Cells {
		if !c.Blank() {
			return false
		}
	}
	return true
}

// Sheet holds every non-blank row of a worksheet.
type Sheet struct {
	Name string
	rows []Row
}

// NewSheet builds a sheet from rows of text values. Values that parse as
// numbers are marked numeric. It is meant for callers that already hold
// decoded data, such as tests.
func NewSheet(name string, values [][]string) *Sheet {
	s := &Sheet{Name: name}
	for i, vals := range values {
		row := Row{Ordinal: i + 1, Cells: make([]Cell, len(vals))}
		for j, v := range vals {
			_, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			row.Cells[j] = Cell{Raw: v, Numeric: err == nil}
		}
		if !row.blank() {
			s.rows = append(s.rows, row)
		}
	}
	return s
}

// Workbook is an ordered collection of sheets. It is immutable once read.
type Workbook struct {
	Sheets []*Sheet
}

// Open reads the workbook at path.
func Open(path string) (*Workbook, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrInputNotFound, path)
		}
		return nil, fmt.Errorf("stat workbook %s: %w", path, err)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open excel file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return decode(f)
}

// Read decodes a workbook from r.
func Read(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open excel stream: %w", err)
	}
	defer func() { _ = f.Close() }()
	return decode(f)
}

func decode(f *excelize.File) (*Workbook, error) {
	wb := &Workbook{}
	for _, name := range f.GetSheetList() {
		sheet, err := readSheet(f, name)
		if err != nil {
			return nil, err
		}
		wb.Sheets = append(wb.Sheets, sheet)
	}
	if len(wb.Sheets) == 0 {
		return nil, domain.ErrEmptyWorkbook
	}
	return wb, nil
}

func readSheet(f *excelize.File, name string) (*Sheet, error) {
	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read rows from sheet %s: %w", name, err)
	}

	sheet := &Sheet{Name: name}
	for i, vals := range rows {
		row := Row{Ordinal: i + 1, Cells: make([]Cell, len(vals))}
		for j, v := range vals {
			row.Cells[j] = Cell{Raw: v, Numeric: isNumericCell(f, name, j+1, i+1, v)}
		}
		if !row.blank() {
			sheet.rows = append(sheet.rows, row)
		}
	}
	return sheet, nil
}

// isNumericCell reports whether a cell is stored as a number. Only values
// that parse as numbers are checked against the cell type, so text cells
// that merely look numeric are kept as text.
func isNumericCell(f *excelize.File, sheet string, col, row int, raw string) bool {
	if _, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err != nil {
		return false
	}
	ref, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return false
	}
	ct, err := f.GetCellType(sheet, ref)
	if err != nil {
		return false
	}
	switch ct {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString:
		return false
	default:
		return true
	}
}

// FindSheet returns the first sheet whose name matches one of aliases,
// ignoring case, accents and punctuation. Exact matches win over prefix
// matches.
func (w *Workbook) FindSheet(aliases ...string) (*Sheet, bool) {
	keys := make([]string, 0, len(aliases))
	for _, a := range aliases {
		if k := normalize.HeaderKey(a); k != "" {
			keys = append(keys, k)
		}
	}
	for _, k := range keys {
		for _, s := range w.Sheets {
			if normalize.HeaderKey(s.Name) == k {
				return s, true
			}
		}
	}
	for _, k := range keys {
		for _, s := range w.Sheets {
			if strings.HasPrefix(normalize.HeaderKey(s.Name), k) {
				return s, true
			}
		}
	}
	return nil, false
}

// Table locates the header row of the sheet and binds cols against it. The
// header row is the first row among the leading rows that binds the
// required field; when none does, the first row is used.
func (s *Sheet) Table(cols Columns, required string) *Table {
	if len(s.rows) == 0 {
		return &Table{Sheet: s.Name, Binding: Binding{}}
	}

	headerIdx := 0
	limit := headerScanDepth
	if limit > len(s.rows) {
		limit = len(s.rows)
	}
	for i := 0; i < limit; i++ {
		if cols.Bind(rowHeaders(s.rows[i])).Has(required) {
			headerIdx = i
			break
		}
	}

	headers := rowHeaders(s.rows[headerIdx])
	return &Table{
		Sheet:     s.Name,
		HeaderRow: s.rows[headerIdx].Ordinal,
		Headers:   headers,
		Rows:      s.rows[headerIdx+1:],
		Binding:   cols.Bind(headers),
	}
}

func rowHeaders(r Row) []string {
	headers := make([]string, len(r.Cells))
	for i, c := range r.Cells {
		headers[i] = c.Text()
	}
	return headers
}

// Table is a sheet's data rows together with its header binding.
type Table struct {
	Sheet     string
	HeaderRow int
	Headers   []string
	Rows      []Row
	Binding   Binding
}
