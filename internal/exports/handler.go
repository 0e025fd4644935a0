package exports

import (
	"log/slog"
	"net/http"

	"github.com/JaimeStill/canopy/pkg/arcgis"
	"github.com/JaimeStill/canopy/pkg/handlers"
	"github.com/JaimeStill/canopy/pkg/routes"
)

// Handler provides HTTP endpoints for map exports.
type Handler struct {
	sys    System
	logger *slog.Logger
}

// ExportRequest is the body of an export call. Archive stores the output
// in blob storage once the job succeeds.
type ExportRequest struct {
	Request
	Archive bool `json:"archive"`
}

// NewHandler creates a Handler with the given system and logger.
func NewHandler(sys System, logger *slog.Logger) *Handler {
	return &Handler{
		sys:    sys,
		logger: logger.With("handler", "exports"),
	}
}

// Routes returns the route group definition for export endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/exports",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "", Handler: h.Export},
		},
	}
}

// Export submits a map, waits for the job, and returns its final state.
// Failed and timed out jobs are reported in the body with status 200.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if err := handlers.DecodeJSON(r, &req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest,
			arcgis.Validation("export", err, "invalid request body"))
		return
	}

	job, err := h.sys.Export(r.Context(), req.Request, req.Archive)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, job)
}
