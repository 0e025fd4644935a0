package exports

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/canopy/pkg/arcgis"
)

// Domain errors for export operations.
var (
	ErrNotReady      = errors.New("export job has not succeeded")
	ErrInvalidOutput = errors.New("export output is not a valid document")
	ErrNoStorage     = errors.New("export archive storage not configured")
)

// MapHTTPStatus maps export errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotReady) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrInvalidOutput) {
		return http.StatusBadGateway
	}
	if errors.Is(err, ErrNoStorage) {
		return http.StatusInternalServerError
	}
	return arcgis.MapHTTPStatus(err)
}
