package conceptset

// OriginKind tags how a member entered a ConceptSet.
type OriginKind string

const (
	// OriginSearch marks members produced by a text/code search.
	OriginSearch OriginKind = "search"
	// OriginDescendantOf marks members produced by a closure expansion.
	OriginDescendantOf OriginKind = "descendant-of"
)

// Origin records the search term or seed concept that produced a member.
// Members reachable several ways carry one Origin per way.
type Origin struct {
	Kind   OriginKind `json:"kind"`
	Term   string     `json:"term,omitempty"`
	SeedID int64      `json:"seed_id,omitempty"`
}

// ConceptSet is a deduplicated, insertion-ordered set of concept ids with
// provenance. It is populated by the resolver and read-only thereafter;
// provenance lives beside the ids so Concept values stay immutable and
// shareable.
type ConceptSet struct {
	order   []int64
	origins map[int64][]Origin
}

// New creates an empty ConceptSet.
func New() *ConceptSet {
	return &ConceptSet{origins: make(map[int64][]Origin)}
}

// Add inserts id with the given origin. A repeated id keeps its original
// position and accumulates the new origin; an origin already recorded for
// the id is not duplicated.
func (cs *ConceptSet) Add(id int64, origin Origin) {
	existing, ok := cs.origins[id]
	if !ok {
		cs.order = append(cs.order, id)
		cs.origins[id] = []Origin{origin}
		return
	}
	for _, o := range existing {
		if o == origin {
			return
		}
	}
	cs.origins[id] = append(existing, origin)
}

// Contains reports whether id is a member.
func (cs *ConceptSet) Contains(id int64) bool {
	_, ok := cs.origins[id]
	return ok
}

// IDs returns the member ids in insertion order. The slice is a copy.
func (cs *ConceptSet) IDs() []int64 {
	ids := make([]int64, len(cs.order))
	copy(ids, cs.order)
	return ids
}

// Origins returns the provenance recorded for id, nil for non-members.
func (cs *ConceptSet) Origins(id int64) []Origin {
	origins, ok := cs.origins[id]
	if !ok {
		return nil
	}
	out := make([]Origin, len(origins))
	copy(out, origins)
	return out
}

// Len returns the number of members.
func (cs *ConceptSet) Len() int { return len(cs.order) }
