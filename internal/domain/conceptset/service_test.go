package conceptset

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vocabset/vocabset/internal/domain/concept"
)

// mockStore serves a fixed diabetes hierarchy: 201820 -> 201826 -> 201254,
// with the closure row 201820 -> 201254 materialized.
type mockStore struct{}

var fixtureConcepts = map[int64]*concept.Concept{
	201820:  {ID: 201820, Code: "73211009", Name: "Diabetes mellitus", Vocabulary: concept.VocabSNOMED},
	201826:  {ID: 201826, Code: "44054006", Name: "Type 2 diabetes mellitus", Vocabulary: concept.VocabSNOMED},
	201254:  {ID: 201254, Code: "420279001", Name: "Diabetic nephropathy due to type 2 diabetes mellitus", Vocabulary: concept.VocabSNOMED},
	1503297: {ID: 1503297, Code: "6809", Name: "metformin", Vocabulary: concept.VocabRxNorm},
}

var fixtureClosure = []concept.SeedDescendant{
	{SeedID: 201820, DescendantID: 201820},
	{SeedID: 201820, DescendantID: 201826},
	{SeedID: 201820, DescendantID: 201254},
	{SeedID: 201826, DescendantID: 201826},
	{SeedID: 201826, DescendantID: 201254},
	{SeedID: 201254, DescendantID: 201254},
	{SeedID: 1503297, DescendantID: 1503297},
}

func (m *mockStore) SearchConcepts(_ context.Context, term, vocabulary string, _ concept.SearchOptions) ([]concept.Hit, error) {
	var hits []concept.Hit
	for _, id := range []int64{201254, 201820, 201826, 1503297} {
		c := fixtureConcepts[id]
		if vocabulary != "" && c.Vocabulary != vocabulary {
			continue
		}
		if strings.Contains(strings.ToLower(c.Name), strings.ToLower(term)) || c.Code == term {
			hits = append(hits, concept.Hit{Concept: c, Score: 100})
		}
	}
	return hits, nil
}

func (m *mockStore) GetDescendants(_ context.Context, seedIDs []int64, _ int) (*concept.Closure, error) {
	cl := &concept.Closure{}
	seen := make(map[int64]bool)
	for _, seed := range seedIDs {
		if seen[seed] {
			continue
		}
		seen[seed] = true
		if _, ok := fixtureConcepts[seed]; !ok {
			cl.Missing = append(cl.Missing, seed)
			continue
		}
		for _, p := range fixtureClosure {
			if p.SeedID == seed {
				cl.Pairs = append(cl.Pairs, p)
			}
		}
	}
	return cl, nil
}

func newResolver() *Service { return NewService(&mockStore{}) }

// =========== ResolveSearch ===========

func TestResolveSearch_AttachesSearchProvenance(t *testing.T) {
	set, err := newResolver().ResolveSearch(context.Background(), "diabetes", "", concept.SearchOptions{})
	require.NoError(t, err)
	require.Equal(t, 3, set.Len())

	for _, id := range set.IDs() {
		origins := set.Origins(id)
		require.Len(t, origins, 1)
		require.Equal(t, OriginSearch, origins[0].Kind)
		require.Equal(t, "diabetes", origins[0].Term)
	}
}

func TestResolveSearch_EmptyTermYieldsEmptySet(t *testing.T) {
	set, err := newResolver().ResolveSearch(context.Background(), "  ", "", concept.SearchOptions{})
	require.NoError(t, err)
	require.Equal(t, 0, set.Len())
}

// =========== ResolveDescendants ===========

func TestResolveDescendants_SnomedScenario(t *testing.T) {
	// Seed: SNOMED 44054006 (id 201826). Both the seed and its descendant
	// 201254 must be members.
	set, missing, err := newResolver().ResolveDescendants(context.Background(), []int64{201826}, -1)
	require.NoError(t, err)
	require.Empty(t, missing)
	require.True(t, set.Contains(201826))
	require.True(t, set.Contains(201254))
}

func TestResolveDescendants_KeepsAllContributingSeeds(t *testing.T) {
	set, _, err := newResolver().ResolveDescendants(context.Background(), []int64{201820, 201826}, -1)
	require.NoError(t, err)

	origins := set.Origins(201254)
	require.ElementsMatch(t, []Origin{
		{Kind: OriginDescendantOf, SeedID: 201820},
		{Kind: OriginDescendantOf, SeedID: 201826},
	}, origins)
}

func TestResolveDescendants_MissingSeedsAreReported(t *testing.T) {
	set, missing, err := newResolver().ResolveDescendants(context.Background(), []int64{201826, 42}, -1)
	require.NoError(t, err)
	require.Equal(t, []int64{42}, missing)
	require.True(t, set.Contains(201254), "partial result must still be usable")
}

func TestResolveDescendants_EmptySeedsYieldEmptySet(t *testing.T) {
	set, missing, err := newResolver().ResolveDescendants(context.Background(), nil, -1)
	require.NoError(t, err)
	require.Empty(t, missing)
	require.Equal(t, 0, set.Len())
}

// =========== Merge ===========

func setOf(pairs ...[2]int64) *ConceptSet {
	set := New()
	for _, p := range pairs {
		set.Add(p[0], Origin{Kind: OriginDescendantOf, SeedID: p[1]})
	}
	return set
}

func sameMembership(t *testing.T, a, b *ConceptSet) {
	t.Helper()
	require.ElementsMatch(t, a.IDs(), b.IDs())
	for _, id := range a.IDs() {
		require.ElementsMatch(t, a.Origins(id), b.Origins(id), "origins differ for %d", id)
	}
}

func TestMerge_Commutative(t *testing.T) {
	a := setOf([2]int64{1, 10}, [2]int64{2, 10})
	b := setOf([2]int64{2, 20}, [2]int64{3, 20})

	sameMembership(t, Merge(a, b), Merge(b, a))
}

func TestMerge_Associative(t *testing.T) {
	a := setOf([2]int64{1, 10})
	b := setOf([2]int64{2, 20})
	c := setOf([2]int64{1, 30}, [2]int64{3, 30})

	sameMembership(t, Merge(Merge(a, b), c), Merge(a, Merge(b, c)))
}

func TestMerge_EmptyIsIdentity(t *testing.T) {
	a := setOf([2]int64{1, 10}, [2]int64{2, 10})

	merged := Merge(a, New())
	require.Equal(t, a.IDs(), merged.IDs())
	sameMembership(t, a, merged)
}

func TestMerge_UnionsProvenance(t *testing.T) {
	a := New()
	a.Add(201254, Origin{Kind: OriginSearch, Term: "nephropathy"})
	b := New()
	b.Add(201254, Origin{Kind: OriginDescendantOf, SeedID: 201826})

	merged := Merge(a, b)
	require.Equal(t, 1, merged.Len())
	require.Len(t, merged.Origins(201254), 2)
}

func TestMerge_KeepsFirstAppearanceOrder(t *testing.T) {
	a := setOf([2]int64{5, 1}, [2]int64{3, 1})
	b := setOf([2]int64{3, 2}, [2]int64{9, 2})

	require.Equal(t, []int64{5, 3, 9}, Merge(a, b).IDs())
}

func TestConceptSet_DuplicateOriginNotRecorded(t *testing.T) {
	set := New()
	origin := Origin{Kind: OriginSearch, Term: "metformin"}
	set.Add(1503297, origin)
	set.Add(1503297, origin)

	require.Equal(t, 1, set.Len())
	require.Len(t, set.Origins(1503297), 1)
}
