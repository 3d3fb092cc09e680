// Package catalog resolves loosely written catalog references (codes or
// descriptions) to stable identifiers, creating missing entries on demand.
package catalog

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/sirupsen/logrus"

	"fondos/internal/domain"
	"fondos/internal/normalize"
	"fondos/internal/port"
)

// Policy controls how a dimension treats values it does not know yet.
type Policy struct {
	// AutoCreate inserts unknown descriptions as new entries.
	AutoCreate bool
	// NumericPassthrough accepts a numeric cell as the identifier itself,
	// for dimensions numbered by a master sheet.
	NumericPassthrough bool
}

// DefaultPolicies returns the policies used when none are configured: axis
// and line must come from master sheets, everything else is created on
// first sight.
func DefaultPolicies() map[domain.Dimension]Policy {
	return map[domain.Dimension]Policy{
		domain.DimensionAxis:        {AutoCreate: false, NumericPassthrough: true},
		domain.DimensionLine:        {AutoCreate: false, NumericPassthrough: true},
		domain.DimensionRegion:      {AutoCreate: true},
		domain.DimensionStage:       {AutoCreate: true},
		domain.DimensionModality:    {AutoCreate: true},
		domain.DimensionInstitution: {AutoCreate: true},
	}
}

// SeedEntry is one row of a master catalog sheet.
type SeedEntry struct {
	Number      *int
	Description string
}

type dimension struct {
	policy   Policy
	byKey    map[string]int64
	byID     map[int64]string
	byNumber map[int]int64
	max      int64
	created  int
}

func (d *dimension) register(id int64, description string, number *int) {
	d.byID[id] = description
	if key := normalize.MatchKey(description); key != "" {
		if _, ok := d.byKey[key]; !ok {
			d.byKey[key] = id
		}
	}
	if number != nil {
		if _, ok := d.byNumber[*number]; !ok {
			d.byNumber[*number] = id
		}
	}
	if id > d.max {
		d.max = id
	}
}

// Resolver holds one lookup table per dimension for the duration of a run.
// It is not safe for concurrent use; the pipeline resolves rows in order.
type Resolver struct {
	repo     port.CatalogRepository
	policies map[domain.Dimension]Policy
	dims     map[domain.Dimension]*dimension
	log      logrus.FieldLogger
}

// NewResolver creates a Resolver. Dimensions missing from policies fall back
// to DefaultPolicies.
func NewResolver(repo port.CatalogRepository, policies map[domain.Dimension]Policy, log logrus.FieldLogger) *Resolver {
	merged := DefaultPolicies()
	for dim, p := range policies {
		merged[dim] = p
	}
	return &Resolver{
		repo:     repo,
		policies: merged,
		dims:     make(map[domain.Dimension]*dimension),
		log:      log,
	}
}

// Preload fetches every stored entry of dim. When two stored descriptions
// normalize to the same key the lower id keeps it.
func (r *Resolver) Preload(ctx context.Context, dim domain.Dimension) error {
	if _, err := dim.Table(); err != nil {
		return err
	}
	entries, err := r.repo.ListEntries(ctx, dim)
	if err != nil {
		return fmt.Errorf("preloading %s catalog: %w", dim, err)
	}

	d := &dimension{
		policy:   r.policies[dim],
		byKey:    make(map[string]int64, len(entries)),
		byID:     make(map[int64]string, len(entries)),
		byNumber: make(map[int]int64),
	}
	for i := range entries {
		e := &entries[i]
		if key := normalize.MatchKey(e.Description); key != "" {
			if prev, ok := d.byKey[key]; ok && prev != e.ID {
				r.log.WithFields(logrus.Fields{
					"dimension": dim,
					"kept_id":   min(prev, e.ID),
					"other_id":  max(prev, e.ID),
					"key":       key,
				}).Warn("duplicate catalog description")
				if e.ID < prev {
					d.byKey[key] = e.ID
				}
			}
		}
		d.register(e.ID, e.Description, e.SourceNumber)
	}
	r.dims[dim] = d

	r.log.WithFields(logrus.Fields{"dimension": dim, "entries": len(entries), "max_id": d.max}).
		Debug("catalog preloaded")
	return nil
}

// PreloadAll preloads every known dimension.
func (r *Resolver) PreloadAll(ctx context.Context) error {
	for _, dim := range domain.Dimensions {
		if err := r.Preload(ctx, dim); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) state(dim domain.Dimension) (*dimension, error) {
	d, ok := r.dims[dim]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCatalogNotLoaded, dim)
	}
	return d, nil
}

// Resolve maps a raw cell value to an identifier of dim. A numeric value is
// tried as an identifier or source number first, then the value is matched
// by description. Unknown descriptions are created when the dimension
// allows it. ok is false for blank values and unresolvable ones; err is only
// set when the store rejects a new entry.
func (r *Resolver) Resolve(ctx context.Context, dim domain.Dimension, raw string) (id int64, ok bool, err error) {
	d, err := r.state(dim)
	if err != nil {
		return 0, false, err
	}
	text := strings.TrimSpace(raw)
	if text == "" {
		return 0, false, nil
	}

	if n, isNum := numericCode(text); isNum {
		if _, known := d.byID[n]; known {
			return n, true, nil
		}
		if n <= math.MaxInt32 {
			if mapped, known := d.byNumber[int(n)]; known {
				return mapped, true, nil
			}
		}
		if d.policy.NumericPassthrough {
			return n, true, nil
		}
	}

	key := normalize.MatchKey(text)
	if found, known := d.byKey[key]; known {
		return found, true, nil
	}

	if !d.policy.AutoCreate {
		return 0, false, nil
	}
	return r.create(ctx, dim, d, d.max+1, normalize.DisplayText(text), nil)
}

func (r *Resolver) create(ctx context.Context, dim domain.Dimension, d *dimension, id int64, description string, number *int) (int64, bool, error) {
	entry := &domain.CatalogEntry{ID: id, Description: description, SourceNumber: number}
	if err := r.repo.InsertEntry(ctx, dim, entry); err != nil {
		return 0, false, fmt.Errorf("creating %s entry %q: %w", dim, description, err)
	}
	d.register(entry.ID, entry.Description, entry.SourceNumber)
	d.created++

	r.log.WithFields(logrus.Fields{"dimension": dim, "id": entry.ID, "description": entry.Description}).
		Info("catalog entry created")
	return entry.ID, true, nil
}

// Seed registers the rows of a master catalog sheet. Numbered entries keep
// their source number as identifier; unnumbered ones get the next free id.
// Entries already present, by id or by description, are left untouched. It
// returns the number of entries created.
func (r *Resolver) Seed(ctx context.Context, dim domain.Dimension, entries []SeedEntry) (int, error) {
	d, err := r.state(dim)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, e := range entries {
		desc := normalize.DisplayText(e.Description)
		key := normalize.MatchKey(e.Description)

		if e.Number == nil {
			if key == "" {
				continue
			}
			if _, known := d.byKey[key]; known {
				continue
			}
			if _, _, err := r.create(ctx, dim, d, d.max+1, desc, nil); err != nil {
				return created, err
			}
			created++
			continue
		}

		id := int64(*e.Number)
		if id <= 0 {
			continue
		}
		if existing, known := d.byID[id]; known {
			d.register(id, existing, e.Number)
			if key != "" {
				if _, taken := d.byKey[key]; !taken {
					d.byKey[key] = id
				}
			}
			continue
		}
		if existing, known := d.byKey[key]; known && key != "" {
			if _, taken := d.byNumber[*e.Number]; !taken {
				d.byNumber[*e.Number] = existing
			}
			continue
		}
		if desc == "" {
			desc = strconv.Itoa(*e.Number)
		}
		if _, _, err := r.create(ctx, dim, d, id, desc, e.Number); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// Suggest returns the known description of dim closest to raw, for
// diagnostics on values that did not resolve. Descriptions containing raw's
// letters in order rank first; otherwise the nearest one within a small edit
// distance is returned.
func (r *Resolver) Suggest(dim domain.Dimension, raw string) (string, bool) {
	d, ok := r.dims[dim]
	if !ok || len(d.byID) == 0 {
		return "", false
	}
	query := normalize.MatchKey(raw)
	if query == "" {
		return "", false
	}

	ids := make([]int64, 0, len(d.byID))
	for id := range d.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	targets := make([]string, len(ids))
	for i, id := range ids {
		targets[i] = normalize.MatchKey(d.byID[id])
	}

	if ranks := fuzzy.RankFindNormalizedFold(query, targets); len(ranks) > 0 {
		sort.Stable(ranks)
		return d.byID[ids[ranks[0].OriginalIndex]], true
	}

	best, bestDist := -1, maxSuggestDistance(query)+1
	for i, t := range targets {
		if dist := fuzzy.LevenshteinDistance(query, t); dist < bestDist {
			best, bestDist = i, dist
		}
	}
	if best < 0 {
		return "", false
	}
	return d.byID[ids[best]], true
}

func maxSuggestDistance(query string) int {
	return max(2, len([]rune(query))/4)
}

// Known reports whether id is a preloaded, seeded or created entry of dim.
func (r *Resolver) Known(dim domain.Dimension, id int64) bool {
	d, ok := r.dims[dim]
	if !ok {
		return false
	}
	_, known := d.byID[id]
	return known
}

// Created returns how many entries of dim were created during this run.
func (r *Resolver) Created(dim domain.Dimension) int {
	if d, ok := r.dims[dim]; ok {
		return d.created
	}
	return 0
}

// Size returns how many entries of dim are known.
func (r *Resolver) Size(dim domain.Dimension) int {
	if d, ok := r.dims[dim]; ok {
		return len(d.byID)
	}
	return 0
}

// Max returns the highest identifier known for dim.
func (r *Resolver) Max(dim domain.Dimension) int64 {
	if d, ok := r.dims[dim]; ok {
		return d.max
	}
	return 0
}

// numericCode parses s as a non-negative whole number such as "3" or "3.0".
func numericCode(s string) (int64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || f < 0 || f != math.Trunc(f) || f > math.MaxInt64/2 {
		return 0, false
	}
	return int64(f), true
}
