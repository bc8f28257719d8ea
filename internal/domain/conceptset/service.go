package conceptset

import (
	"context"
	"strings"

	"github.com/vocabset/vocabset/internal/domain/concept"
)

// Store is the slice of the concept store the resolver needs.
type Store interface {
	SearchConcepts(ctx context.Context, term, vocabulary string, opts concept.SearchOptions) ([]concept.Hit, error)
	GetDescendants(ctx context.Context, seedIDs []int64, maxSeparation int) (*concept.Closure, error)
}

// Service turns user-level requests into provenance-carrying ConceptSets.
type Service struct {
	store Store
}

// NewService creates a resolver over the given store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// ResolveSearch resolves a text/code search into a ConceptSet. Each hit
// carries a {search, term} origin. An empty or blank term resolves to an
// empty set without touching the store.
func (s *Service) ResolveSearch(ctx context.Context, term, vocabulary string, opts concept.SearchOptions) (*ConceptSet, error) {
	set := New()
	term = strings.TrimSpace(term)
	if term == "" {
		return set, nil
	}

	hits, err := s.store.SearchConcepts(ctx, term, vocabulary, opts)
	if err != nil {
		return nil, err
	}
	for _, hit := range hits {
		set.Add(hit.Concept.ID, Origin{Kind: OriginSearch, Term: term})
	}
	return set, nil
}

// ResolveDescendants expands the closure under seedIDs into a ConceptSet.
// Every member keeps one {descendant-of, seed} origin per seed that reached
// it. Seeds absent from the store are returned in the second value; the set
// is a valid partial result. An empty seed list resolves to an empty set.
func (s *Service) ResolveDescendants(ctx context.Context, seedIDs []int64, maxSeparation int) (*ConceptSet, []int64, error) {
	set := New()
	if len(seedIDs) == 0 {
		return set, nil, nil
	}

	closure, err := s.store.GetDescendants(ctx, seedIDs, maxSeparation)
	if err != nil {
		return nil, nil, err
	}
	for _, p := range closure.Pairs {
		set.Add(p.DescendantID, Origin{Kind: OriginDescendantOf, SeedID: p.SeedID})
	}
	return set, closure.Missing, nil
}

// Merge unions ConceptSets by concept id, keeping the insertion order of the
// first appearance and unioning provenance for ids present in several sets.
// Merge is commutative up to order, associative, and the empty set is its
// identity.
func Merge(sets ...*ConceptSet) *ConceptSet {
	merged := New()
	for _, set := range sets {
		if set == nil {
			continue
		}
		for _, id := range set.order {
			for _, origin := range set.origins[id] {
				merged.Add(id, origin)
			}
		}
	}
	return merged
}
