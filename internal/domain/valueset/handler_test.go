package valueset

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/vocabset/vocabset/internal/domain/concept"
	"github.com/vocabset/vocabset/internal/domain/conceptset"
)

// handlerStore backs both the resolver and the assembler in handler tests.
type handlerStore struct {
	*mockGetter
}

func (s *handlerStore) SearchConcepts(_ context.Context, term, vocabulary string, _ concept.SearchOptions) ([]concept.Hit, error) {
	var hits []concept.Hit
	for _, id := range []int64{201254, 201826, 1503297, 3004410} {
		c := s.concepts[id]
		if vocabulary != "" && c.Vocabulary != vocabulary {
			continue
		}
		if strings.Contains(strings.ToLower(c.Name), strings.ToLower(term)) || c.Code == term {
			hits = append(hits, concept.Hit{Concept: c, Score: 100})
		}
	}
	return hits, nil
}

func (s *handlerStore) GetDescendants(_ context.Context, seedIDs []int64, _ int) (*concept.Closure, error) {
	cl := &concept.Closure{}
	for _, seed := range seedIDs {
		if _, ok := s.concepts[seed]; !ok {
			cl.Missing = append(cl.Missing, seed)
			continue
		}
		cl.Pairs = append(cl.Pairs, concept.SeedDescendant{SeedID: seed, DescendantID: seed})
		if seed == 201826 {
			cl.Pairs = append(cl.Pairs, concept.SeedDescendant{SeedID: seed, DescendantID: 201254})
		}
	}
	return cl, nil
}

func newTestHandler() (*Handler, *echo.Echo) {
	store := &handlerStore{mockGetter: newMockGetter()}
	h := NewHandler(conceptset.NewService(store), NewService(store))
	return h, echo.New()
}

func TestHandler_Build_FHIRJSON(t *testing.T) {
	h, e := newTestHandler()

	body := `{"name":"T2DM","status":"active","seeds":{"ids":[201826]}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/valuesets", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.Build(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var doc Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Equal(t, "ValueSet", doc.ResourceType)
	require.Len(t, doc.Compose.Include, 1)
	require.Equal(t, SystemSNOMED, doc.Compose.Include[0].System)
	require.Len(t, doc.Compose.Include[0].Concept, 2)
}

func TestHandler_Build_CSV(t *testing.T) {
	h, e := newTestHandler()

	body := `{"name":"T2DM","seeds":{"ids":[201826]}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/valuesets?format=csv", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.Build(c))
	require.Equal(t, http.StatusOK, rec.Code)

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Equal(t, "system,code,display", strings.TrimSpace(lines[0]))
	require.Len(t, lines, 3)
}

func TestHandler_Build_MissingSeedsHeader(t *testing.T) {
	h, e := newTestHandler()

	body := `{"name":"Partial","seeds":{"ids":[201826,42]}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/valuesets", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.Build(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "42", rec.Header().Get(missingSeedsHeader))
}

func TestHandler_Build_MergesSearchesAndSeeds(t *testing.T) {
	h, e := newTestHandler()

	body := `{"name":"Combined","searches":[{"term":"metformin","vocabulary":"RxNorm"}],"seeds":{"ids":[201826]}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/valuesets", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.Build(c))

	var doc Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Len(t, doc.Compose.Include, 2)

	total := 0
	for _, inc := range doc.Compose.Include {
		total += len(inc.Concept)
	}
	require.Equal(t, 3, total)
}

func TestHandler_Build_RequiresName(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/valuesets", strings.NewReader(`{"seeds":{"ids":[201826]}}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Build(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestHandler_BuildFHIR_UnsupportedVocabularyOutcome(t *testing.T) {
	h, e := newTestHandler()

	// Seed 42072200 is CPT4, which has no entry in the coding-system table.
	body := `{"name":"WithCPT","seeds":{"ids":[42072200]}}`
	req := httptest.NewRequest(http.MethodPost, "/fhir/ValueSet/$build", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.BuildFHIR(c))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var outcome map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	require.Equal(t, "OperationOutcome", outcome["resourceType"])
}
