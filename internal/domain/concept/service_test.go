package concept

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// =========== Mock Repository ===========

type mockRepo struct {
	concepts map[int64]*Concept
	edges    []ClosureEdge
	failAll  bool
}

// newMockRepo builds a small OMOP-shaped fixture: a three-level SNOMED
// diabetes hierarchy plus single concepts in other vocabularies.
func newMockRepo() *mockRepo {
	m := &mockRepo{concepts: make(map[int64]*Concept)}

	for _, c := range []*Concept{
		{ID: 201820, Code: "73211009", Name: "Diabetes mellitus", Vocabulary: VocabSNOMED, Domain: "Condition", ConceptClass: "Clinical Finding", Standard: true},
		{ID: 201826, Code: "44054006", Name: "Type 2 diabetes mellitus", Vocabulary: VocabSNOMED, Domain: "Condition", ConceptClass: "Clinical Finding", Standard: true},
		{ID: 201254, Code: "420279001", Name: "Diabetic nephropathy due to type 2 diabetes mellitus", Vocabulary: VocabSNOMED, Domain: "Condition", ConceptClass: "Clinical Finding", Standard: true},
		{ID: 1503297, Code: "6809", Name: "metformin", Vocabulary: VocabRxNorm, Domain: "Drug", ConceptClass: "Ingredient", Standard: true},
		{ID: 4316093, Code: "295497003", Name: "Metformin poisoning", Vocabulary: VocabSNOMED, Domain: "Condition", ConceptClass: "Clinical Finding", Standard: true},
		{ID: 3004410, Code: "4548-4", Name: "Hemoglobin A1c", Vocabulary: VocabLOINC, Domain: "Measurement", ConceptClass: "Lab Test", Standard: true},
	} {
		m.concepts[c.ID] = c
	}

	// Precomputed transitive closure, reflexive rows included.
	m.edges = []ClosureEdge{
		{AncestorID: 201820, DescendantID: 201820, MinSeparation: 0, MaxSeparation: 0},
		{AncestorID: 201826, DescendantID: 201826, MinSeparation: 0, MaxSeparation: 0},
		{AncestorID: 201254, DescendantID: 201254, MinSeparation: 0, MaxSeparation: 0},
		{AncestorID: 201820, DescendantID: 201826, MinSeparation: 1, MaxSeparation: 1},
		{AncestorID: 201826, DescendantID: 201254, MinSeparation: 1, MaxSeparation: 1},
		{AncestorID: 201820, DescendantID: 201254, MinSeparation: 2, MaxSeparation: 2},
	}
	return m
}

func (m *mockRepo) SearchText(_ context.Context, term, vocabulary string, limit int) ([]*Concept, error) {
	if m.failAll {
		return nil, fmt.Errorf("%w: connection refused", ErrStoreUnavailable)
	}
	q := strings.ToLower(term)
	var results []*Concept
	for _, c := range m.concepts {
		if !strings.Contains(strings.ToLower(c.Name), q) && c.Code != term {
			continue
		}
		if vocabulary != "" && c.Vocabulary != vocabulary {
			continue
		}
		results = append(results, c)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *mockRepo) GetByID(_ context.Context, id int64) (*Concept, error) {
	c, ok := m.concepts[id]
	if !ok {
		return nil, fmt.Errorf("concept %d: %w", id, ErrNotFound)
	}
	return c, nil
}

func (m *mockRepo) GetByIDs(_ context.Context, ids []int64) (map[int64]*Concept, error) {
	if m.failAll {
		return nil, fmt.Errorf("%w: connection refused", ErrStoreUnavailable)
	}
	found := make(map[int64]*Concept)
	for _, id := range ids {
		if c, ok := m.concepts[id]; ok {
			found[id] = c
		}
	}
	return found, nil
}

func (m *mockRepo) DescendantEdges(_ context.Context, seedIDs []int64, maxSeparation int) ([]ClosureEdge, error) {
	seeds := make(map[int64]bool)
	for _, id := range seedIDs {
		seeds[id] = true
	}
	var edges []ClosureEdge
	for _, e := range m.edges {
		if !seeds[e.AncestorID] {
			continue
		}
		if maxSeparation >= 0 && e.MinSeparation > maxSeparation {
			continue
		}
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].AncestorID != edges[j].AncestorID {
			return edges[i].AncestorID < edges[j].AncestorID
		}
		return edges[i].DescendantID < edges[j].DescendantID
	})
	return edges, nil
}

func newTestStore() *Store {
	return NewStore(newMockRepo(), zerolog.Nop())
}

// =========== Search ===========

func TestSearchConcepts_VocabularyFilter(t *testing.T) {
	store := newTestStore()

	// Both "metformin" (RxNorm) and "Metformin poisoning" (SNOMED) match the
	// text; the filter must keep only the RxNorm one.
	hits, err := store.SearchConcepts(context.Background(), "metformin", VocabRxNorm, SearchOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].Concept.ID != 1503297 {
		t.Errorf("expected concept 1503297, got %d", hits[0].Concept.ID)
	}
}

func TestSearchConcepts_NoFilterMatchesBothVocabularies(t *testing.T) {
	store := newTestStore()

	hits, err := store.SearchConcepts(context.Background(), "metformin", "", SearchOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	// Deterministic order by concept id.
	if hits[0].Concept.ID != 1503297 || hits[1].Concept.ID != 4316093 {
		t.Errorf("unexpected order: %d, %d", hits[0].Concept.ID, hits[1].Concept.ID)
	}
}

func TestSearchConcepts_ExactCodeMatch(t *testing.T) {
	store := newTestStore()

	hits, err := store.SearchConcepts(context.Background(), "44054006", VocabSNOMED, SearchOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 || hits[0].Concept.ID != 201826 {
		t.Fatalf("expected the type 2 diabetes concept, got %+v", hits)
	}
}

func TestSearchConcepts_NoMatchIsNotAnError(t *testing.T) {
	store := newTestStore()

	hits, err := store.SearchConcepts(context.Background(), "pancreatitis", "", SearchOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
}

func TestSearchConcepts_EmptyTerm(t *testing.T) {
	store := newTestStore()

	if _, err := store.SearchConcepts(context.Background(), "   ", "", SearchOptions{}); !isInvalidQuery(err) {
		t.Errorf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestSearchConcepts_FuzzyThresholdBounds(t *testing.T) {
	store := newTestStore()

	_, err := store.SearchConcepts(context.Background(), "metformin", "", SearchOptions{Fuzzy: true, Threshold: 30})
	if !isInvalidQuery(err) {
		t.Errorf("expected ErrInvalidQuery for threshold 30, got %v", err)
	}
}

func TestSearchConcepts_StoreErrorPropagates(t *testing.T) {
	repo := newMockRepo()
	repo.failAll = true
	store := NewStore(repo, zerolog.Nop())

	_, err := store.SearchConcepts(context.Background(), "metformin", "", SearchOptions{})
	if !isStoreUnavailable(err) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestRankFuzzy_ExactNameScoresFull(t *testing.T) {
	concepts := []*Concept{
		{ID: 1503297, Name: "metformin"},
		{ID: 3004410, Name: "Hemoglobin A1c"},
	}
	hits := rankFuzzy("Metformin", concepts, 80)
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit above threshold, got %d", len(hits))
	}
	if hits[0].Concept.ID != 1503297 || hits[0].Score != 100 {
		t.Errorf("expected exact match with score 100, got id=%d score=%d", hits[0].Concept.ID, hits[0].Score)
	}
}

func TestRankFuzzy_SubstringOfLongNameScoresFull(t *testing.T) {
	concepts := []*Concept{
		{ID: 201254, Name: "Diabetic nephropathy due to type 2 diabetes mellitus"},
	}
	// Local alignment: the term appears verbatim inside the long name.
	hits := rankFuzzy("diabetic nephropathy", concepts, 80)
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].Score != 100 {
		t.Errorf("expected score 100 for contained term, got %d", hits[0].Score)
	}
}

// =========== Lookup ===========

func TestGetConcept_NotFound(t *testing.T) {
	store := newTestStore()

	_, err := store.GetConcept(context.Background(), 999999)
	if !isNotFound(err) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// =========== Descendants ===========

func TestGetDescendants_ReflexiveInclusion(t *testing.T) {
	store := newTestStore()

	closure, err := store.GetDescendants(context.Background(), []int64{201826}, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids := closure.IDs()
	if !containsID(ids, 201826) {
		t.Error("seed must be included in its own expansion")
	}
	if !containsID(ids, 201254) {
		t.Error("descendant 201254 missing from expansion of 201826")
	}
}

func TestGetDescendants_Transitivity(t *testing.T) {
	store := newTestStore()

	// 201826 is a descendant of 201820 and 201254 a descendant of 201826, so
	// the precomputed closure must surface 201254 under 201820 directly.
	closure, err := store.GetDescendants(context.Background(), []int64{201820}, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !containsID(closure.IDs(), 201254) {
		t.Error("transitive descendant 201254 missing from expansion of 201820")
	}
}

func TestGetDescendants_MaxSeparation(t *testing.T) {
	store := newTestStore()

	closure, err := store.GetDescendants(context.Background(), []int64{201820}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids := closure.IDs()
	if !containsID(ids, 201826) {
		t.Error("direct child 201826 must survive maxSeparation=1")
	}
	if containsID(ids, 201254) {
		t.Error("201254 is two levels down and must be excluded at maxSeparation=1")
	}
}

func TestGetDescendants_MissingSeedIsPartial(t *testing.T) {
	store := newTestStore()

	closure, err := store.GetDescendants(context.Background(), []int64{201826, 999999}, -1)
	if err != nil {
		t.Fatalf("missing seed must not abort the batch: %v", err)
	}
	if len(closure.Missing) != 1 || closure.Missing[0] != 999999 {
		t.Errorf("expected missing=[999999], got %v", closure.Missing)
	}
	if !containsID(closure.IDs(), 201254) {
		t.Error("existing seed must still be expanded")
	}
}

func TestGetDescendants_SeedWithoutDescendants(t *testing.T) {
	store := newTestStore()

	// metformin has no closure rows at all; the expansion is just the seed.
	closure, err := store.GetDescendants(context.Background(), []int64{1503297}, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids := closure.IDs()
	if len(ids) != 1 || ids[0] != 1503297 {
		t.Errorf("expected just the seed, got %v", ids)
	}
}

func TestGetDescendants_DuplicateSeedsDeduplicated(t *testing.T) {
	store := newTestStore()

	closure, err := store.GetDescendants(context.Background(), []int64{201826, 201826}, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count := 0
	for _, p := range closure.Pairs {
		if p.SeedID == 201826 && p.DescendantID == 201826 {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected one reflexive pair for the deduplicated seed, got %d", count)
	}
}

func TestGetDescendants_MultiSeedKeepsAllProvenance(t *testing.T) {
	store := newTestStore()

	// 201254 is reachable from both seeds; both pairs must be present.
	closure, err := store.GetDescendants(context.Background(), []int64{201820, 201826}, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[SeedDescendant]bool{
		{SeedID: 201820, DescendantID: 201254}: false,
		{SeedID: 201826, DescendantID: 201254}: false,
	}
	for _, p := range closure.Pairs {
		if _, ok := want[p]; ok {
			want[p] = true
		}
	}
	for pair, found := range want {
		if !found {
			t.Errorf("missing provenance pair %+v", pair)
		}
	}
}

func TestGetDescendants_EmptySeedList(t *testing.T) {
	store := newTestStore()

	closure, err := store.GetDescendants(context.Background(), nil, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(closure.Pairs) != 0 || len(closure.Missing) != 0 {
		t.Errorf("expected empty closure, got %+v", closure)
	}
}

// =========== helpers ===========

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool         { return errors.Is(err, ErrNotFound) }
func isInvalidQuery(err error) bool     { return errors.Is(err, ErrInvalidQuery) }
func isStoreUnavailable(err error) bool { return errors.Is(err, ErrStoreUnavailable) }
