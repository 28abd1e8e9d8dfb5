package fhir

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/ehr/fhirsearch/internal/platform/filter"
	"github.com/ehr/fhirsearch/pkg/pagination"
)

// Searcher runs a compiled filter against the document store and returns
// one page of documents plus the total match count.
type Searcher interface {
	Search(ctx context.Context, resourceType string, expr filter.Expr, hints *filter.HintSet, page pagination.Params) ([]bson.M, int64, error)
}

// SearchHandler serves FHIR search over HTTP.
type SearchHandler struct {
	compiler *Compiler
	store    Searcher
	logger   zerolog.Logger
	now      func() time.Time
}

// NewSearchHandler builds a handler. store may be nil, in which case only
// the compile and parameter endpoints are useful.
func NewSearchHandler(compiler *Compiler, store Searcher, logger zerolog.Logger) *SearchHandler {
	return &SearchHandler{compiler: compiler, store: store, logger: logger, now: time.Now}
}

func (h *SearchHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/:resourceType", h.Search)
	g.POST("/:resourceType/_search", h.Search)
	g.GET("/:resourceType/$compile", h.Compile)
	g.POST("/:resourceType/$compile", h.Compile)
	g.GET("/:resourceType/$parameters", h.Parameters)
}

// CompileResponse is the body of a $compile request.
type CompileResponse struct {
	ResourceType string          `json:"resourceType"`
	Filter       json.RawMessage `json:"filter"`
	Hints        []string        `json:"hints"`
}

// ParameterInfo describes one search parameter of a resource type.
type ParameterInfo struct {
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	Paths  []string `json:"paths"`
	Target []string `json:"target,omitempty"`
}

func (h *SearchHandler) compile(c echo.Context) (*CompiledQuery, url.Values, error) {
	values, err := searchValues(c)
	if err != nil {
		return nil, nil, invalidValue("", "", "malformed form body: "+err.Error())
	}
	q, err := h.compiler.Compile(c.Param("resourceType"), ArgsFromValues(values))
	if err != nil {
		return nil, nil, err
	}
	return q, values, nil
}

func (h *SearchHandler) knownResource(c echo.Context) bool {
	return h.compiler.Registry().Has(c.Param("resourceType"))
}

func (h *SearchHandler) unknownResource(c echo.Context) error {
	return c.JSON(http.StatusNotFound, NotSupportedOutcome("resource type "+c.Param("resourceType")+" is not searchable"))
}

func (h *SearchHandler) fail(c echo.Context, err error) error {
	status, oo := OutcomeForError(err)
	level := zerolog.WarnLevel
	if status >= http.StatusInternalServerError {
		level = zerolog.ErrorLevel
	}
	h.logger.WithLevel(level).Err(err).Str("resource_type", c.Param("resourceType")).Int("status", status).Msg("search failed")
	return c.JSON(status, oo)
}

// Compile returns the filter document and index hints for the request's
// search parameters without running the search.
func (h *SearchHandler) Compile(c echo.Context) error {
	if !h.knownResource(c) {
		return h.unknownResource(c)
	}
	q, _, err := h.compile(c)
	if err != nil {
		return h.fail(c, err)
	}
	doc, err := filter.MarshalExtJSON(q.Filter, false)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, CompileResponse{
		ResourceType: q.ResourceType,
		Filter:       doc,
		Hints:        q.Columns(),
	})
}

// Search compiles the request and returns a searchset Bundle.
func (h *SearchHandler) Search(c echo.Context) error {
	if !h.knownResource(c) {
		return h.unknownResource(c)
	}
	if h.store == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorOutcome("no document store configured"))
	}
	q, values, err := h.compile(c)
	if err != nil {
		return h.fail(c, err)
	}

	page := pagination.FromContext(c)
	docs, total, err := h.store.Search(c.Request().Context(), q.ResourceType, q.Filter, q.Hints, page)
	if err != nil {
		return h.fail(c, err)
	}

	bundle, err := NewSearchBundle(docs, SearchBundleParams{
		ID:       uuid.NewString(),
		BasePath: "/fhir/" + q.ResourceType,
		Query:    linkQuery(values),
		Page:     page,
		Total:    total,
		Now:      h.now(),
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, bundle)
}

// Parameters lists the search parameters a resource type accepts.
func (h *SearchHandler) Parameters(c echo.Context) error {
	if !h.knownResource(c) {
		return h.unknownResource(c)
	}
	defs := h.compiler.Registry().ForResource(c.Param("resourceType"))
	out := make([]ParameterInfo, 0, len(defs))
	for _, d := range defs {
		out = append(out, ParameterInfo{
			Name:   d.Name,
			Type:   d.Type.String(),
			Paths:  d.Paths(),
			Target: d.Target,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// linkQuery re-encodes the search parameters for bundle links, leaving
// paging to the link builder.
func linkQuery(values url.Values) string {
	q := make(url.Values, len(values))
	for k, v := range values {
		switch k {
		case "_count", "_offset", "limit", "offset":
			continue
		}
		q[k] = v
	}
	return q.Encode()
}
