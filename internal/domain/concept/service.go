package concept

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/rs/zerolog"
)

// Search limits. Handlers and the CLI clamp caller-supplied limits to
// MaxSearchLimit.
const (
	DefaultSearchLimit = 50
	MaxSearchLimit     = 500
)

// Fuzzy threshold bounds (percent similarity).
const (
	MinFuzzyThreshold     = 50
	MaxFuzzyThreshold     = 100
	DefaultFuzzyThreshold = 80
)

// SearchOptions tunes a concept text search.
type SearchOptions struct {
	// Fuzzy re-scores substring candidates with a similarity metric and
	// drops those below Threshold. Results are then ordered by score
	// descending, ties broken by concept id.
	Fuzzy     bool
	Threshold int
	Limit     int
}

// Store exposes read-only, indexed access to the vocabulary. It is stateless
// across calls and safe for concurrent use.
type Store struct {
	repo  Repository
	cache *ClosureCache
	log   zerolog.Logger
}

// NewStore creates a Store over the given repository.
func NewStore(repo Repository, log zerolog.Logger) *Store {
	return &Store{repo: repo, log: log}
}

// SetClosureCache attaches an optional closure cache. Must be called before
// the store is shared across goroutines.
func (s *Store) SetClosureCache(c *ClosureCache) { s.cache = c }

// SearchConcepts matches term against concept names (case-insensitive
// substring) and codes (exact). An empty result is not an error.
func (s *Store) SearchConcepts(ctx context.Context, term, vocabulary string, opts SearchOptions) ([]Hit, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("%w: empty search term", ErrInvalidQuery)
	}
	if opts.Threshold == 0 {
		opts.Threshold = DefaultFuzzyThreshold
	}
	if opts.Fuzzy && (opts.Threshold < MinFuzzyThreshold || opts.Threshold > MaxFuzzyThreshold) {
		return nil, fmt.Errorf("%w: fuzzy threshold %d outside %d..%d",
			ErrInvalidQuery, opts.Threshold, MinFuzzyThreshold, MaxFuzzyThreshold)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	concepts, err := s.repo.SearchText(ctx, term, vocabulary, limit)
	if err != nil {
		return nil, err
	}

	if !opts.Fuzzy {
		hits := make([]Hit, len(concepts))
		for i, c := range concepts {
			hits[i] = Hit{Concept: c, Score: 100}
		}
		return hits, nil
	}
	return rankFuzzy(term, concepts, opts.Threshold), nil
}

// rankFuzzy scores each candidate name against the term with
// Smith-Waterman-Gotoh similarity (a local-alignment metric, so a term buried
// inside a long concept name still scores highly), filters by threshold and
// sorts by score descending.
func rankFuzzy(term string, concepts []*Concept, threshold int) []Hit {
	metric := metrics.NewSmithWatermanGotoh()
	metric.CaseSensitive = false

	var hits []Hit
	for _, c := range concepts {
		score := int(strutil.Similarity(term, c.Name, metric) * 100)
		if score >= threshold {
			hits = append(hits, Hit{Concept: c, Score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Concept.ID < hits[j].Concept.ID
	})
	return hits
}

// GetConcept returns a single concept or ErrNotFound.
func (s *Store) GetConcept(ctx context.Context, id int64) (*Concept, error) {
	return s.repo.GetByID(ctx, id)
}

// GetConcepts batch-loads concepts by id. Absent ids are simply missing from
// the map; callers decide whether that is an error.
func (s *Store) GetConcepts(ctx context.Context, ids []int64) (map[int64]*Concept, error) {
	return s.repo.GetByIDs(ctx, ids)
}

// GetDescendants expands the closure under the given seeds. Every existing
// seed is included in its own expansion (separation 0), even when the
// backing table has no reflexive row for it. Seeds absent from the concept
// table are reported in Closure.Missing without aborting the other seeds.
// A negative maxSeparation means unlimited depth.
func (s *Store) GetDescendants(ctx context.Context, seedIDs []int64, maxSeparation int) (*Closure, error) {
	seeds := dedupeIDs(seedIDs)
	if len(seeds) == 0 {
		return &Closure{}, nil
	}

	if s.cache != nil {
		if cl, ok := s.cache.Get(ctx, seeds, maxSeparation); ok {
			return cl, nil
		}
	}

	known, err := s.repo.GetByIDs(ctx, seeds)
	if err != nil {
		return nil, err
	}

	var existing, missing []int64
	for _, id := range seeds {
		if _, ok := known[id]; ok {
			existing = append(existing, id)
		} else {
			missing = append(missing, id)
		}
	}

	cl := &Closure{Missing: missing}
	seen := make(map[SeedDescendant]bool)

	// Reflexive inclusion first, in seed order.
	for _, id := range existing {
		p := SeedDescendant{SeedID: id, DescendantID: id}
		seen[p] = true
		cl.Pairs = append(cl.Pairs, p)
	}

	if len(existing) > 0 {
		edges, err := s.repo.DescendantEdges(ctx, existing, maxSeparation)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			p := SeedDescendant{SeedID: e.AncestorID, DescendantID: e.DescendantID}
			if !seen[p] {
				seen[p] = true
				cl.Pairs = append(cl.Pairs, p)
			}
		}
	}

	if s.cache != nil {
		s.cache.Put(ctx, seeds, maxSeparation, cl)
	}

	s.log.Debug().
		Int("seeds", len(existing)).
		Int("missing", len(missing)).
		Int("pairs", len(cl.Pairs)).
		Msg("closure expanded")
	return cl, nil
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
