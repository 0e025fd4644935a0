package zones

import (
	"log/slog"
	"net/http"

	"github.com/JaimeStill/canopy/pkg/arcgis"
	"github.com/JaimeStill/canopy/pkg/handlers"
	"github.com/JaimeStill/canopy/pkg/routes"
	"github.com/JaimeStill/canopy/pkg/spatial"
)

// Handler provides HTTP endpoints for zone queries.
type Handler struct {
	sys    System
	logger *slog.Logger
}

// QueryRequest carries the geometries to test.
type QueryRequest struct {
	Geometries []spatial.Geometry `json:"geometries"`
}

// NewHandler creates a Handler with the given system and logger.
func NewHandler(sys System, logger *slog.Logger) *Handler {
	return &Handler{
		sys:    sys,
		logger: logger.With("handler", "zones"),
	}
}

// Routes returns the route group definition for zone endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/zones",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "/england", Handler: h.England},
			{Method: "POST", Pattern: "/intersect", Handler: h.Intersect},
		},
	}
}

// England reports whether the geometries fall within England.
func (h *Handler) England(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	within, err := h.sys.IsWithinEngland(r.Context(), req.Geometries)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, EnglandResult{IsInEngland: within})
}

// Intersect lists the zone layers the geometries intersect.
func (h *Handler) Intersect(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	m, err := h.sys.IntersectingZones(r.Context(), req.Geometries)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, m)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (QueryRequest, bool) {
	var req QueryRequest
	if err := handlers.DecodeJSON(r, &req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest,
			arcgis.Validation("zones", err, "invalid request body"))
		return req, false
	}
	return req, true
}
