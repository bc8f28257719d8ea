package concept

// Concept is one row of the OMOP concept table. Concepts are immutable once
// loaded; callers share pointers freely.
type Concept struct {
	ID           int64  `db:"concept_id" json:"concept_id"`
	Code         string `db:"concept_code" json:"concept_code"`
	Name         string `db:"concept_name" json:"concept_name"`
	Vocabulary   string `db:"vocabulary_id" json:"vocabulary_id"`
	Domain       string `db:"domain_id" json:"domain_id,omitempty"`
	ConceptClass string `db:"concept_class_id" json:"concept_class_id,omitempty"`
	Standard     bool   `db:"standard_concept" json:"standard_concept"`
}

// Vocabulary identifiers as they appear in the vocabulary_id column.
const (
	VocabSNOMED          = "SNOMED"
	VocabLOINC           = "LOINC"
	VocabRxNorm          = "RxNorm"
	VocabRxNormExtension = "RxNorm Extension"
	VocabICD10           = "ICD10"
	VocabATC             = "ATC"
	VocabOMOPGenomic     = "OMOP Genomic"
)

// ClosureEdge is one row of the precomputed concept_ancestor closure.
// A reflexive edge (ancestor == descendant) has separation 0.
type ClosureEdge struct {
	AncestorID    int64 `db:"ancestor_concept_id" json:"ancestor_concept_id"`
	DescendantID  int64 `db:"descendant_concept_id" json:"descendant_concept_id"`
	MinSeparation int   `db:"min_levels_of_separation" json:"min_levels_of_separation"`
	MaxSeparation int   `db:"max_levels_of_separation" json:"max_levels_of_separation"`
}

// Hit is a single search result. Score is a similarity percentage (0-100);
// exact and substring matches score 100.
type Hit struct {
	Concept *Concept `json:"concept"`
	Score   int      `json:"score"`
}

// SeedDescendant records that DescendantID is reachable from SeedID in the
// closure. A descendant reachable from several seeds appears once per seed so
// provenance is never lost.
type SeedDescendant struct {
	SeedID       int64 `json:"seed_id"`
	DescendantID int64 `json:"descendant_id"`
}

// Closure is the result of a descendant expansion over one or more seeds.
// Missing lists seed ids absent from the concept table; their absence does
// not abort the expansion of the remaining seeds.
type Closure struct {
	Pairs   []SeedDescendant `json:"pairs"`
	Missing []int64          `json:"missing,omitempty"`
}

// IDs returns the distinct descendant ids in pair order.
func (c *Closure) IDs() []int64 {
	seen := make(map[int64]bool, len(c.Pairs))
	ids := make([]int64, 0, len(c.Pairs))
	for _, p := range c.Pairs {
		if !seen[p.DescendantID] {
			seen[p.DescendantID] = true
			ids = append(ids, p.DescendantID)
		}
	}
	return ids
}
