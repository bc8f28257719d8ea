package concept

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handler provides REST endpoints for vocabulary lookups.
type Handler struct {
	store        *Store
	defaultLimit int
}

// NewHandler creates a new concept handler. defaultLimit applies when the
// request carries no _count/limit parameter; zero or negative falls back to
// DefaultSearchLimit.
func NewHandler(store *Store, defaultLimit int) *Handler {
	if defaultLimit <= 0 {
		defaultLimit = DefaultSearchLimit
	}
	return &Handler{store: store, defaultLimit: defaultLimit}
}

// RegisterRoutes registers concept routes on the API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/concepts", h.Search)
	api.GET("/concepts/:id", h.Get)
	api.POST("/concepts/descendants", h.Descendants)
}

// Search handles GET /api/v1/concepts?q=...&vocabulary=...&fuzzy=...&threshold=...
// With format=csv the matched concepts are returned as a CSV download.
func (h *Handler) Search(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter 'q' is required")
	}

	opts := SearchOptions{Limit: h.limit(c)}
	if c.QueryParam("fuzzy") == "true" {
		opts.Fuzzy = true
		if t := c.QueryParam("threshold"); t != "" {
			threshold, err := strconv.Atoi(t)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "threshold must be an integer")
			}
			opts.Threshold = threshold
		}
	}

	hits, err := h.store.SearchConcepts(c.Request().Context(), query, c.QueryParam("vocabulary"), opts)
	if err != nil {
		return httpError(err)
	}

	if c.QueryParam("format") == "csv" {
		concepts := make([]*Concept, len(hits))
		for i, hit := range hits {
			concepts[i] = hit.Concept
		}
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="concepts.csv"`)
		c.Response().Header().Set(echo.HeaderContentType, "text/csv")
		c.Response().WriteHeader(http.StatusOK)
		return WriteCSV(c.Response(), concepts)
	}

	// Keep the body an empty array rather than null when nothing matched.
	if hits == nil {
		hits = []Hit{}
	}
	return c.JSON(http.StatusOK, hits)
}

// Get handles GET /api/v1/concepts/:id
func (h *Handler) Get(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "concept id must be an integer")
	}
	concept, err := h.store.GetConcept(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, concept)
}

// DescendantsRequest is the body of POST /api/v1/concepts/descendants.
// MaxSeparation nil or negative means unlimited depth.
type DescendantsRequest struct {
	SeedIDs       []int64 `json:"seed_ids"`
	MaxSeparation *int    `json:"max_separation,omitempty"`
}

// Descendants handles POST /api/v1/concepts/descendants
func (h *Handler) Descendants(c echo.Context) error {
	var req DescendantsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	maxSeparation := -1
	if req.MaxSeparation != nil {
		maxSeparation = *req.MaxSeparation
	}

	closure, err := h.store.GetDescendants(c.Request().Context(), req.SeedIDs, maxSeparation)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, closure)
}

func (h *Handler) limit(c echo.Context) int {
	limit, _ := strconv.Atoi(c.QueryParam("_count"))
	if limit <= 0 {
		limit, _ = strconv.Atoi(c.QueryParam("limit"))
	}
	if limit <= 0 {
		limit = h.defaultLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	return limit
}

func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrInvalidQuery):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrStoreUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
