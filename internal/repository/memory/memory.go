// Package memory keeps the importer's tables in process memory. It backs dry
// runs and tests; nothing survives the process.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fondos/internal/domain"
	"fondos/internal/port"
)

// Store holds every table. The repositories it hands out share its lock.
type Store struct {
	mu       sync.RWMutex
	catalogs map[domain.Dimension]map[int64]domain.CatalogEntry
	records  map[domain.RecordType][]domain.Record
	advances map[string]domain.Advance
	runs     map[uuid.UUID]domain.ImportRun
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		catalogs: make(map[domain.Dimension]map[int64]domain.CatalogEntry),
		records:  make(map[domain.RecordType][]domain.Record),
		advances: make(map[string]domain.Advance),
		runs:     make(map[uuid.UUID]domain.ImportRun),
	}
}

// Catalogs returns the store's CatalogRepository.
func (s *Store) Catalogs() port.CatalogRepository { return catalogRepo{s} }

// Records returns the store's RecordRepository.
func (s *Store) Records() port.RecordRepository { return recordRepo{s} }

// Advances returns the store's AdvanceRepository.
func (s *Store) Advances() port.AdvanceRepository { return advanceRepo{s} }

// Runs returns the store's ImportRunRepository.
func (s *Store) Runs() port.ImportRunRepository { return runRepo{s} }

// SeedCatalog loads entries into dim, replacing entries with the same id.
func (s *Store) SeedCatalog(dim domain.Dimension, entries ...domain.CatalogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tbl := s.catalog(dim)
	for _, e := range entries {
		tbl[e.ID] = e
	}
}

// RecordsOf returns a copy of the stored records of recordType in write order.
func (s *Store) RecordsOf(recordType domain.RecordType) []domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.Record(nil), s.records[recordType]...)
}

// AdvancesOf returns the stored advances of recordType sorted by record and column.
func (s *Store) AdvancesOf(recordType domain.RecordType) []domain.Advance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Advance
	for _, a := range s.advances {
		if a.RecordType == recordType {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RecordKey != out[j].RecordKey {
			return out[i].RecordKey < out[j].RecordKey
		}
		return out[i].ColumnKey < out[j].ColumnKey
	})
	return out
}

func (s *Store) catalog(dim domain.Dimension) map[int64]domain.CatalogEntry {
	tbl, ok := s.catalogs[dim]
	if !ok {
		tbl = make(map[int64]domain.CatalogEntry)
		s.catalogs[dim] = tbl
	}
	return tbl
}

type catalogRepo struct{ s *Store }

func (r catalogRepo) ListEntries(_ context.Context, dim domain.Dimension) ([]domain.CatalogEntry, error) {
	if _, err := dim.Table(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	entries := make([]domain.CatalogEntry, 0, len(r.s.catalogs[dim]))
	for _, e := range r.s.catalogs[dim] {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

func (r catalogRepo) InsertEntry(_ context.Context, dim domain.Dimension, entry *domain.CatalogEntry) error {
	if _, err := dim.Table(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	tbl := r.s.catalog(dim)
	if _, exists := tbl[entry.ID]; exists {
		return fmt.Errorf("%w: %s id %d", domain.ErrDuplicateEntry, dim, entry.ID)
	}
	tbl[entry.ID] = *entry
	return nil
}

type recordRepo struct{ s *Store }

func (r recordRepo) UpsertBatch(_ context.Context, recordType domain.RecordType, records []domain.Record, key domain.ConflictKey) (domain.UpsertResult, error) {
	var res domain.UpsertResult
	if _, err := recordType.Table(); err != nil {
		return res, err
	}
	if _, err := key.Column(); err != nil {
		return res, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	// Validate the whole batch first so a failing batch writes nothing.
	stored := r.s.records[recordType]
	index := make(map[string]int, len(stored))
	for i := range stored {
		index[stored[i].Key(key)] = i
	}
	other := domain.ConflictOnSourceID
	if key == domain.ConflictOnSourceID {
		other = domain.ConflictOnCode
	}
	owner := make(map[string]string, len(stored))
	for i := range stored {
		owner[stored[i].Key(other)] = stored[i].Key(key)
	}
	seen := make(map[string]bool, len(records))
	for i := range records {
		k := records[i].Key(key)
		if seen[k] {
			return domain.UpsertResult{}, fmt.Errorf("upsert would affect %s %q twice", key, k)
		}
		seen[k] = true
		if o, taken := owner[records[i].Key(other)]; taken && o != k {
			return domain.UpsertResult{}, fmt.Errorf("duplicate %s %q", other, records[i].Key(other))
		}
		owner[records[i].Key(other)] = k
	}

	for i := range records {
		k := records[i].Key(key)
		if idx, ok := index[k]; ok {
			stored[idx] = records[i]
			res.Updated++
			continue
		}
		index[k] = len(stored)
		stored = append(stored, records[i])
		res.Inserted++
	}
	r.s.records[recordType] = stored
	return res, nil
}

func (r recordRepo) DeleteAll(_ context.Context, recordType domain.RecordType) (int64, error) {
	if _, err := recordType.Table(); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := int64(len(r.s.records[recordType]))
	delete(r.s.records, recordType)
	return n, nil
}

type advanceRepo struct{ s *Store }

func advanceKey(a *domain.Advance) string {
	return string(a.RecordType) + "\x00" + a.RecordKey + "\x00" + a.ColumnKey
}

func (r advanceRepo) UpsertBatch(_ context.Context, advances []domain.Advance) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for i := range advances {
		r.s.advances[advanceKey(&advances[i])] = advances[i]
	}
	return len(advances), nil
}

func (r advanceRepo) DeleteForRecordType(_ context.Context, recordType domain.RecordType) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for k, a := range r.s.advances {
		if a.RecordType == recordType {
			delete(r.s.advances, k)
			n++
		}
	}
	return n, nil
}

type runRepo struct{ s *Store }

func (r runRepo) Create(_ context.Context, run *domain.ImportRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = domain.RunStatusRunning
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.runs[run.ID] = *run
	return nil
}

func (r runRepo) Finish(_ context.Context, run *domain.ImportRun) error {
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.runs[run.ID]; !ok {
		return domain.ErrNotFound
	}
	r.s.runs[run.ID] = *run
	return nil
}

func (r runRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.ImportRun, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	run, ok := r.s.runs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &run, nil
}
