package ingestion

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/JaimeStill/canopy/pkg/arcgis"
	"github.com/JaimeStill/canopy/pkg/handlers"
	"github.com/JaimeStill/canopy/pkg/routes"
	"github.com/JaimeStill/canopy/pkg/spatial"
)

// Handler provides HTTP endpoints for shape ingestion.
type Handler struct {
	sys           System
	logger        *slog.Logger
	maxUploadSize int64
}

// NewHandler creates a Handler with the given system, logger, and request
// body limit.
func NewHandler(sys System, logger *slog.Logger, maxUploadSize int64) *Handler {
	return &Handler{
		sys:           sys,
		logger:        logger.With("handler", "ingestion"),
		maxUploadSize: maxUploadSize,
	}
}

// Routes returns the route group definition for ingestion endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/ingest",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "/file", Handler: h.File},
			{Method: "POST", Pattern: "/string", Handler: h.String},
		},
	}
}

// File ingests a multipart upload. The file is read from the "file" field;
// simplification options come from the generalize, offset, reduce, and
// roundDecimalPlaces fields.
func (h *Handler) File(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge,
			arcgis.Validation("ingest file", arcgis.ErrTooLarge, "request body"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest,
			arcgis.Validation("ingest file", arcgis.ErrEmptyPayload, "missing file field"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	simplification, err := simplificationFromForm(r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	ext := r.FormValue("extension")
	if ext == "" {
		ext = filepath.Ext(header.Filename)
	}

	result, err := h.sys.IngestFile(r.Context(), ShapeInput{
		Data:           data,
		Extension:      ext,
		Filename:       header.Filename,
		Simplification: simplification,
	})
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// String ingests a JSON body carrying a geometry string.
func (h *Handler) String(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	var in ShapeInput
	if err := handlers.DecodeJSON(r, &in); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge,
				arcgis.Validation("ingest string", arcgis.ErrTooLarge, "request body"))
			return
		}
		handlers.RespondError(w, h.logger, http.StatusBadRequest,
			arcgis.Validation("ingest string", err, "invalid request body"))
		return
	}

	result, err := h.sys.IngestString(r.Context(), in)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

func simplificationFromForm(r *http.Request) (spatial.Simplification, error) {
	var s spatial.Simplification
	var err error

	if v := r.FormValue("generalize"); v != "" {
		if s.Generalize, err = strconv.ParseBool(v); err != nil {
			return s, arcgis.Validation("ingest file", ErrInvalidSimplification, "generalize %q", v)
		}
	}
	if v := r.FormValue("offset"); v != "" {
		if s.Offset, err = strconv.ParseFloat(v, 64); err != nil {
			return s, arcgis.Validation("ingest file", ErrInvalidSimplification, "offset %q", v)
		}
	}
	if v := r.FormValue("reduce"); v != "" {
		if s.Reduce, err = strconv.ParseBool(v); err != nil {
			return s, arcgis.Validation("ingest file", ErrInvalidSimplification, "reduce %q", v)
		}
	}
	if v := r.FormValue("roundDecimalPlaces"); v != "" {
		if s.RoundDecimalPlaces, err = strconv.Atoi(v); err != nil {
			return s, arcgis.Validation("ingest file", ErrInvalidSimplification, "roundDecimalPlaces %q", v)
		}
	}
	return s, nil
}
