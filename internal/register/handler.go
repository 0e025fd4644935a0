package register

import (
	"log/slog"
	"net/http"

	"github.com/JaimeStill/canopy/pkg/arcgis"
	"github.com/JaimeStill/canopy/pkg/handlers"
	"github.com/JaimeStill/canopy/pkg/pagination"
	"github.com/JaimeStill/canopy/pkg/routes"
)

// Handler provides HTTP endpoints for register publishing.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

// PublishRequest is the body of a publish call. The case id comes from
// the path.
type PublishRequest struct {
	Status   string    `json:"status"`
	Features []Feature `json:"features"`
}

// SearchRequest combines pagination and filter criteria for the search endpoint.
type SearchRequest struct {
	pagination.PageRequest
	Filters
}

// NewHandler creates a Handler with the given system, logger, and pagination config.
func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "register"),
		pagination: pagination,
	}
}

// Routes returns the route group definition for register endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/register",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "POST", Pattern: "/search", Handler: h.Search},
			{Method: "POST", Pattern: "/cases/{caseId}", Handler: h.Publish},
		},
	}
}

// Publish pushes a case's features to the register.
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if err := handlers.DecodeJSON(r, &req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest,
			arcgis.Validation("publish", err, "invalid request body"))
		return
	}

	result, err := h.sys.Publish(r.Context(), PublishCommand{
		CaseID:   r.PathValue("caseId"),
		Features: req.Features,
		Status:   req.Status,
	})
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// List returns a page of ledger entries filtered by query parameters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := FiltersFromQuery(r.URL.Query())

	result, err := h.sys.List(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Search returns a page of ledger entries using a JSON body for criteria.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := handlers.DecodeJSON(r, &req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest,
			arcgis.Validation("search", err, "invalid request body"))
		return
	}

	result, err := h.sys.List(r.Context(), req.PageRequest, req.Filters)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}
