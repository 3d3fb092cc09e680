// Package mapper turns primary-sheet rows into canonical records, resolving
// their catalog references along the way.
package mapper

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"fondos/internal/domain"
	"fondos/internal/normalize"
	"fondos/internal/workbook"
)

// CatalogResolver resolves a raw cell value to a catalog identifier.
type CatalogResolver interface {
	Resolve(ctx context.Context, dim domain.Dimension, raw string) (int64, bool, error)
	// Suggest names the known entry closest to an unresolved value.
	Suggest(dim domain.Dimension, raw string) (string, bool)
	// Known reports whether id is an entry of dim. Passed-through numbers
	// are not.
	Known(dim domain.Dimension, id int64) bool
}

// Stats counts what happened to the rows handed to MapRow.
type Stats struct {
	RowsRead         int
	Emitted          int
	SkippedMissingID int
	SkippedDuplicate int
	UnresolvedFKs    int
	UnknownIDs       int
	ZeroAmounts      int
	CatalogErrors    int
	Advances         int
}

type milestoneColumn struct {
	index  int
	header string
	stage  string
}

type monthColumn struct {
	index  int
	header string
	date   string
}

// Mapper maps the rows of one bound table. Rows must be fed in sheet order:
// the first occurrence of a stable identifier wins.
type Mapper struct {
	schema        Schema
	resolver      CatalogResolver
	key           domain.ConflictKey
	defaultPeriod int
	log           logrus.FieldLogger

	table      *workbook.Table
	milestones []milestoneColumn
	months     []monthColumn

	seenIDs   map[int64]int
	seenCodes map[string]int
	stats     Stats
	issues    []domain.Issue
}

// NewMapper creates a Mapper for schema. defaultPeriod is used for rows
// whose period cell is blank.
func NewMapper(schema Schema, resolver CatalogResolver, key domain.ConflictKey, defaultPeriod int, log logrus.FieldLogger) *Mapper {
	return &Mapper{
		schema:        schema,
		resolver:      resolver,
		key:           key,
		defaultPeriod: defaultPeriod,
		log:           log,
		seenIDs:       make(map[int64]int),
		seenCodes:     make(map[string]int),
	}
}

// Bind attaches the mapper to a table and detects its schedule columns. A
// table without a stable identifier column cannot be imported.
func (m *Mapper) Bind(table *workbook.Table) error {
	if !table.Binding.Has(FieldSeq) {
		return fmt.Errorf("%w: sheet %q", domain.ErrMissingIDColumn, table.Sheet)
	}
	m.table = table
	m.milestones = nil
	m.months = nil

	// Advances are keyed by header; a repeated header keeps its first column.
	keys := make(map[string]bool)
	for _, ms := range m.schema.Milestones {
		if idx, ok := table.Binding[ms.field()]; ok {
			keys[normalize.HeaderKey(table.Headers[idx])] = true
			m.milestones = append(m.milestones, milestoneColumn{index: idx, header: table.Headers[idx], stage: ms.Stage})
		}
	}
	for i, h := range table.Headers {
		if table.Binding.Bound(i) {
			continue
		}
		date, ok := normalize.ParseMonthYearHeader(h)
		if !ok {
			continue
		}
		key := normalize.HeaderKey(h)
		if keys[key] {
			m.log.WithFields(logrus.Fields{"sheet": table.Sheet, "column": h}).Warn("repeated schedule column ignored")
			continue
		}
		keys[key] = true
		m.months = append(m.months, monthColumn{index: i, header: h, date: date})
	}

	m.log.WithFields(logrus.Fields{
		"sheet":      table.Sheet,
		"header_row": table.HeaderRow,
		"columns":    len(table.Binding),
		"milestones": len(m.milestones),
		"months":     len(m.months),
	}).Info("sheet bound")
	return nil
}

// HasSchedule reports whether the bound table carries milestone or month columns.
func (m *Mapper) HasSchedule() bool {
	return len(m.milestones) > 0 || len(m.months) > 0
}

// SynthesizeCode builds the business code used when the source has none.
func SynthesizeCode(prefix string, period int, sourceID int64) string {
	return fmt.Sprintf("%s-%d-%d", prefix, period, sourceID)
}

func (m *Mapper) cell(row workbook.Row, field string) workbook.Cell {
	return m.table.Binding.Cell(row, field)
}

func (m *Mapper) header(field string) string {
	if idx, ok := m.table.Binding[field]; ok {
		return m.table.Headers[idx]
	}
	return field
}

func (m *Mapper) report(row workbook.Row, column, value string, kind domain.IssueKind, msg string) {
	issue := domain.Issue{Row: row.Ordinal, Column: column, Value: value, Kind: kind, Message: msg}
	m.issues = append(m.issues, issue)
	m.log.WithFields(logrus.Fields{
		"row":    issue.Row,
		"column": issue.Column,
		"value":  issue.Value,
		"kind":   issue.Kind,
	}).Warn(msg)
}

// MapRow builds the canonical record for row. It returns nil without error
// when the row is skipped for a missing or repeated identifier; those rows
// are counted and reported. Errors are only returned for conditions that
// make the whole run unsound.
func (m *Mapper) MapRow(ctx context.Context, row workbook.Row) (*domain.Record, error) {
	if m.table == nil {
		return nil, errors.New("mapper is not bound to a table")
	}
	m.stats.RowsRead++

	seqCell := m.cell(row, FieldSeq)
	seq, ok := normalize.ToInteger(seqCell.Raw)
	if !ok {
		m.stats.SkippedMissingID++
		m.report(row, m.header(FieldSeq), seqCell.Text(), domain.IssueMissingID, "row has no stable identifier, skipped")
		return nil, nil
	}
	if first, dup := m.seenIDs[seq]; dup {
		m.stats.SkippedDuplicate++
		m.report(row, m.header(FieldSeq), strconv.FormatInt(seq, 10), domain.IssueDuplicateID,
			fmt.Sprintf("identifier already seen at row %d, skipped", first))
		return nil, nil
	}

	period := m.defaultPeriod
	if p, ok := normalize.ToInteger(m.cell(row, FieldPeriod).Raw); ok && p > 0 {
		period = int(p)
	}

	code := m.cell(row, FieldCode).Text()
	if code == "" || normalize.IsNoneSentinel(code) {
		code = SynthesizeCode(m.schema.Prefix, period, seq)
	}
	// Codes are unique per record type whatever the conflict key is.
	if first, dup := m.seenCodes[code]; dup {
		m.stats.SkippedDuplicate++
		m.report(row, m.header(FieldCode), code, domain.IssueDuplicateID,
			fmt.Sprintf("code already seen at row %d, skipped", first))
		return nil, nil
	}
	m.seenCodes[code] = row.Ordinal
	m.seenIDs[seq] = row.Ordinal

	rec := &domain.Record{
		SourceID: seq,
		Code:     code,
		Name:     m.cell(row, FieldName).Text(),
		Period:   period,
		Status:   m.cell(row, FieldStatus).Text(),
	}
	if rec.Name == "" {
		rec.Name = DefaultName
	}

	for _, dim := range domain.Dimensions {
		if err := m.resolveForeignKey(ctx, row, rec, dim); err != nil {
			return nil, err
		}
	}

	fund := normalize.ToDecimal(m.cell(row, FieldFund).Raw)
	counterpart := normalize.ToDecimal(m.cell(row, FieldCounterpart).Raw)
	total := fund.Add(counterpart)
	rec.FundAmount = fund.InexactFloat64()
	rec.Counterpart = counterpart.InexactFloat64()
	rec.Total = total.InexactFloat64()
	if total.IsZero() {
		m.stats.ZeroAmounts++
		m.report(row, m.header(FieldFund), m.cell(row, FieldFund).Text(), domain.IssueZeroAmount, "record has no monetary amount")
	}

	if b, ok := normalize.ToInteger(m.cell(row, FieldBeneficiaries).Raw); ok && b > 0 {
		rec.Beneficiaries = b
	}

	m.stats.Emitted++
	return rec, nil
}

func (m *Mapper) resolveForeignKey(ctx context.Context, row workbook.Row, rec *domain.Record, dim domain.Dimension) error {
	field := string(dim)
	raw := m.cell(row, field).Text()
	if raw == "" {
		return nil
	}

	id, ok, err := m.resolver.Resolve(ctx, dim, raw)
	switch {
	case errors.Is(err, domain.ErrCatalogNotLoaded):
		return err
	case err != nil:
		m.stats.CatalogErrors++
		m.report(row, m.header(field), raw, domain.IssueCatalogWrite, err.Error())
		return nil
	case !ok:
		m.stats.UnresolvedFKs++
		msg := fmt.Sprintf("%s value does not match any catalog entry", dim)
		if closest, found := m.resolver.Suggest(dim, raw); found {
			msg += fmt.Sprintf(" (closest: %q)", closest)
		}
		m.report(row, m.header(field), raw, domain.IssueUnresolvedFK, msg)
		return nil
	}
	if !m.resolver.Known(dim, id) {
		m.stats.UnknownIDs++
		m.report(row, m.header(field), raw, domain.IssueUnknownID,
			fmt.Sprintf("%s identifier %d is not in the catalog, kept as given", dim, id))
	}
	rec.SetForeignKey(dim, &id)
	return nil
}

// Advances extracts the milestone dates and positive month amounts of row
// for rec. Call it only for rows MapRow emitted.
func (m *Mapper) Advances(ctx context.Context, row workbook.Row, rec *domain.Record) ([]domain.Advance, error) {
	if !m.HasSchedule() {
		return nil, nil
	}
	recordKey := rec.Key(m.key)

	var out []domain.Advance
	for _, ms := range m.milestones {
		cell := row.Cell(ms.index)
		date, ok := normalize.DateCell(cell.Raw, cell.Numeric)
		if !ok {
			continue
		}
		adv := domain.Advance{
			RecordType: m.schema.RecordType,
			RecordKey:  recordKey,
			ColumnKey:  normalize.HeaderKey(ms.header),
			Kind:       domain.AdvanceKindMilestone,
			Date:       date,
		}
		id, resolved, err := m.resolver.Resolve(ctx, domain.DimensionStage, ms.stage)
		switch {
		case errors.Is(err, domain.ErrCatalogNotLoaded):
			return nil, err
		case err != nil:
			m.stats.CatalogErrors++
			m.report(row, ms.header, ms.stage, domain.IssueCatalogWrite, err.Error())
		case resolved:
			adv.StageID = &id
		}
		out = append(out, adv)
	}

	for _, mc := range m.months {
		amount := normalize.ToMoney(row.Cell(mc.index).Raw)
		if amount <= 0 {
			continue
		}
		out = append(out, domain.Advance{
			RecordType: m.schema.RecordType,
			RecordKey:  recordKey,
			ColumnKey:  normalize.HeaderKey(mc.header),
			Kind:       domain.AdvanceKindMonth,
			Date:       mc.date,
			Amount:     &amount,
		})
	}
	m.stats.Advances += len(out)
	return out, nil
}

// Stats returns the counters accumulated so far.
func (m *Mapper) Stats() Stats {
	return m.stats
}

// Issues returns every row-level finding in the order it was reported.
func (m *Mapper) Issues() []domain.Issue {
	return m.issues
}
