package concept

import "context"

// Repository provides read-only access to the concept and concept_ancestor
// tables. All methods must be safe for concurrent use.
type Repository interface {
	// SearchText matches term case-insensitively as a substring of
	// concept_name or exactly against concept_code, optionally restricted to
	// one vocabulary. Results are ordered by concept id; an empty result is
	// not an error.
	SearchText(ctx context.Context, term, vocabulary string, limit int) ([]*Concept, error)

	// GetByID returns the concept with the given id, or ErrNotFound.
	GetByID(ctx context.Context, id int64) (*Concept, error)

	// GetByIDs returns the concepts that exist, keyed by id. Absent ids are
	// simply not in the map.
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*Concept, error)

	// DescendantEdges returns closure rows whose ancestor is one of seedIDs,
	// ordered by (ancestor, descendant). A negative maxSeparation means
	// unlimited; otherwise rows with min_levels_of_separation greater than
	// maxSeparation are excluded.
	DescendantEdges(ctx context.Context, seedIDs []int64, maxSeparation int) ([]ClosureEdge, error)
}
