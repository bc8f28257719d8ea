package concept

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const conceptColumns = `concept_id, concept_code, concept_name, vocabulary_id,
	       COALESCE(domain_id,''), COALESCE(concept_class_id,''),
	       COALESCE(standard_concept,'') = 'S'`

type repoPG struct {
	pool *pgxpool.Pool
}

// NewRepoPG creates a Repository backed by the OMOP vocabulary tables.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) SearchText(ctx context.Context, term, vocabulary string, limit int) ([]*Concept, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	pattern := "%" + term + "%"

	query := `SELECT ` + conceptColumns + `
	 FROM concept
	 WHERE (concept_name ILIKE $1 OR concept_code = $2)`
	args := []interface{}{pattern, term}
	if vocabulary != "" {
		query += ` AND vocabulary_id = $3`
		args = append(args, vocabulary)
	}
	query += fmt.Sprintf(` ORDER BY concept_id LIMIT %d`, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: concept search: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var results []*Concept
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: concept search: %v", ErrStoreUnavailable, err)
	}
	return results, nil
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Concept, error) {
	var c Concept
	err := r.pool.QueryRow(ctx,
		`SELECT `+conceptColumns+` FROM concept WHERE concept_id = $1`, id).
		Scan(&c.ID, &c.Code, &c.Name, &c.Vocabulary, &c.Domain, &c.ConceptClass, &c.Standard)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("concept %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: concept get: %v", ErrStoreUnavailable, err)
	}
	return &c, nil
}

func (r *repoPG) GetByIDs(ctx context.Context, ids []int64) (map[int64]*Concept, error) {
	found := make(map[int64]*Concept, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+conceptColumns+` FROM concept WHERE concept_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: concept batch get: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, err
		}
		found[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: concept batch get: %v", ErrStoreUnavailable, err)
	}
	return found, nil
}

func (r *repoPG) DescendantEdges(ctx context.Context, seedIDs []int64, maxSeparation int) ([]ClosureEdge, error) {
	if len(seedIDs) == 0 {
		return nil, nil
	}

	query := `SELECT ancestor_concept_id, descendant_concept_id,
	       min_levels_of_separation, max_levels_of_separation
	 FROM concept_ancestor
	 WHERE ancestor_concept_id = ANY($1)`
	args := []interface{}{seedIDs}
	if maxSeparation >= 0 {
		query += ` AND min_levels_of_separation <= $2`
		args = append(args, maxSeparation)
	}
	query += ` ORDER BY ancestor_concept_id, descendant_concept_id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: closure query: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var edges []ClosureEdge
	for rows.Next() {
		var e ClosureEdge
		if err := rows.Scan(&e.AncestorID, &e.DescendantID, &e.MinSeparation, &e.MaxSeparation); err != nil {
			return nil, fmt.Errorf("%w: closure scan: %v", ErrStoreUnavailable, err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: closure query: %v", ErrStoreUnavailable, err)
	}
	return edges, nil
}

func scanConcept(rows pgx.Rows) (*Concept, error) {
	var c Concept
	if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Vocabulary, &c.Domain, &c.ConceptClass, &c.Standard); err != nil {
		return nil, fmt.Errorf("%w: concept scan: %v", ErrStoreUnavailable, err)
	}
	return &c, nil
}
