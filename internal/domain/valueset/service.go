package valueset

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vocabset/vocabset/internal/domain/concept"
	"github.com/vocabset/vocabset/internal/domain/conceptset"
)

var validStatuses = map[string]bool{
	"draft": true, "active": true,
}

// ConceptGetter is the slice of the concept store the assembler needs.
type ConceptGetter interface {
	GetConcepts(ctx context.Context, ids []int64) (map[int64]*concept.Concept, error)
}

// Service assembles ConceptSets into exports. Assembly is all-or-nothing: a
// partially built export is never returned.
type Service struct {
	store ConceptGetter
}

// NewService creates a new assembler.
func NewService(store ConceptGetter) *Service {
	return &Service{store: store}
}

// Assemble resolves every member of the set to its concept, maps each
// vocabulary to its coding system and produces one member per concept in the
// set's insertion order. Missing concepts abort with a single aggregated
// NotFoundError naming all missing ids; an unmapped vocabulary aborts with
// UnsupportedVocabularyError.
func (s *Service) Assemble(ctx context.Context, set *conceptset.ConceptSet, meta Metadata) (*Export, error) {
	if meta.Status == "" {
		meta.Status = "draft"
	}
	if !validStatuses[meta.Status] {
		return nil, fmt.Errorf("invalid status: %s", meta.Status)
	}
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}

	ids := set.IDs()
	concepts, err := s.store.GetConcepts(ctx, ids)
	if err != nil {
		return nil, err
	}

	var missing []int64
	for _, id := range ids {
		if _, ok := concepts[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &concept.NotFoundError{IDs: missing}
	}

	members := make([]Member, 0, len(ids))
	for _, id := range ids {
		c := concepts[id]
		system, err := SystemURI(c.Vocabulary)
		if err != nil {
			return nil, err
		}
		members = append(members, Member{System: system, Code: c.Code, Display: c.Name})
	}

	return &Export{
		ID:          meta.ID,
		Name:        meta.Name,
		Status:      meta.Status,
		Description: meta.Description,
		Members:     members,
	}, nil
}
