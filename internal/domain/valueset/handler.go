package valueset

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/vocabset/vocabset/internal/domain/concept"
	"github.com/vocabset/vocabset/internal/domain/conceptset"
	"github.com/vocabset/vocabset/internal/platform/fhir"
)

// Handler exposes ValueSet construction over HTTP.
type Handler struct {
	resolver  *conceptset.Service
	assembler *Service
}

// NewHandler creates a new ValueSet handler.
func NewHandler(resolver *conceptset.Service, assembler *Service) *Handler {
	return &Handler{resolver: resolver, assembler: assembler}
}

// RegisterRoutes registers ValueSet routes on the API and FHIR groups.
func (h *Handler) RegisterRoutes(api *echo.Group, fhirGroup *echo.Group) {
	api.POST("/valuesets", h.Build)
	fhirGroup.POST("/ValueSet/$build", h.BuildFHIR)
}

// SearchInput is one search contributing to a built ValueSet.
type SearchInput struct {
	Term       string `json:"term"`
	Vocabulary string `json:"vocabulary,omitempty"`
	Fuzzy      bool   `json:"fuzzy,omitempty"`
	Threshold  int    `json:"threshold,omitempty"`
}

// SeedInput is a descendant expansion contributing to a built ValueSet.
// MaxSeparation nil or negative means unlimited depth.
type SeedInput struct {
	IDs           []int64 `json:"ids"`
	MaxSeparation *int    `json:"max_separation,omitempty"`
}

// BuildRequest is the body of POST /api/v1/valuesets and
// POST /fhir/ValueSet/$build. Searches and seeds are resolved independently
// and merged into one deduplicated set before assembly.
type BuildRequest struct {
	ID          string        `json:"id,omitempty"`
	Name        string        `json:"name"`
	Status      string        `json:"status,omitempty"`
	Description string        `json:"description,omitempty"`
	Searches    []SearchInput `json:"searches,omitempty"`
	Seeds       *SeedInput    `json:"seeds,omitempty"`
}

// missingSeedsHeader carries seed ids that were not in the vocabulary. The
// build is a valid partial result without them.
const missingSeedsHeader = "X-Missing-Seeds"

func (h *Handler) build(ctx context.Context, req *BuildRequest) (*Export, []int64, error) {
	var sets []*conceptset.ConceptSet

	for _, s := range req.Searches {
		opts := concept.SearchOptions{Fuzzy: s.Fuzzy, Threshold: s.Threshold}
		set, err := h.resolver.ResolveSearch(ctx, s.Term, s.Vocabulary, opts)
		if err != nil {
			return nil, nil, err
		}
		sets = append(sets, set)
	}

	var missing []int64
	if req.Seeds != nil {
		maxSeparation := -1
		if req.Seeds.MaxSeparation != nil {
			maxSeparation = *req.Seeds.MaxSeparation
		}
		set, miss, err := h.resolver.ResolveDescendants(ctx, req.Seeds.IDs, maxSeparation)
		if err != nil {
			return nil, nil, err
		}
		missing = miss
		sets = append(sets, set)
	}

	export, err := h.assembler.Assemble(ctx, conceptset.Merge(sets...), Metadata{
		ID:          req.ID,
		Name:        req.Name,
		Status:      req.Status,
		Description: req.Description,
	})
	if err != nil {
		return nil, nil, err
	}
	return export, missing, nil
}

// Build handles POST /api/v1/valuesets?format=json|csv|xlsx (default json,
// the FHIR document). Seed ids absent from the vocabulary are reported in
// the X-Missing-Seeds response header.
func (h *Handler) Build(c echo.Context) error {
	var req BuildRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}

	export, missing, err := h.build(c.Request().Context(), &req)
	if err != nil {
		return buildError(err)
	}
	setMissingHeader(c, missing)

	switch c.QueryParam("format") {
	case "", "json":
		return c.JSON(http.StatusOK, FHIRDocument(export))
	case "csv":
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+export.Name+`.csv"`)
		c.Response().Header().Set(echo.HeaderContentType, "text/csv")
		c.Response().WriteHeader(http.StatusOK)
		return WriteCSV(c.Response(), export)
	case "xlsx":
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+export.Name+`.xlsx"`)
		c.Response().Header().Set(echo.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Response().WriteHeader(http.StatusOK)
		return WriteWorkbook(c.Response(), export)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown format: "+c.QueryParam("format"))
	}
}

// BuildFHIR handles POST /fhir/ValueSet/$build and always answers with FHIR
// resources: the ValueSet on success, an OperationOutcome on failure.
func (h *Handler) BuildFHIR(c echo.Context) error {
	var req BuildRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest,
			fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeInvalid, "invalid request body"))
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest,
			fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeInvalid, "name is required"))
	}

	export, missing, err := h.build(c.Request().Context(), &req)
	if err != nil {
		status, outcome := outcomeFor(err)
		return c.JSON(status, outcome)
	}
	setMissingHeader(c, missing)

	c.Response().Header().Set(echo.HeaderContentType, "application/fhir+json")
	return c.JSON(http.StatusOK, FHIRDocument(export))
}

func setMissingHeader(c echo.Context, missing []int64) {
	if len(missing) == 0 {
		return
	}
	ids := make([]string, len(missing))
	for i, id := range missing {
		ids[i] = strconv.FormatInt(id, 10)
	}
	c.Response().Header().Set(missingSeedsHeader, strings.Join(ids, ","))
}

func buildError(err error) *echo.HTTPError {
	var unsupported *UnsupportedVocabularyError
	switch {
	case errors.Is(err, concept.ErrInvalidQuery):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.As(err, &unsupported):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, concept.ErrNotFound):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, concept.ErrStoreUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

func outcomeFor(err error) (int, *fhir.OperationOutcome) {
	var unsupported *UnsupportedVocabularyError
	switch {
	case errors.Is(err, concept.ErrInvalidQuery):
		return http.StatusBadRequest,
			fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeInvalid, err.Error())
	case errors.As(err, &unsupported):
		return http.StatusUnprocessableEntity,
			fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeCodeInvalid, err.Error())
	case errors.Is(err, concept.ErrNotFound):
		return http.StatusUnprocessableEntity,
			fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeNotFound, err.Error())
	case errors.Is(err, concept.ErrStoreUnavailable):
		return http.StatusServiceUnavailable,
			fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeTransient, err.Error())
	default:
		return http.StatusBadRequest,
			fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeProcessing, err.Error())
	}
}
