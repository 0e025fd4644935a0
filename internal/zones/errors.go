package zones

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/canopy/pkg/arcgis"
)

// Domain errors for zone queries.
var (
	ErrNoGeometry       = errors.New("no geometry supplied")
	ErrMixedReferences  = errors.New("geometries do not share a spatial reference")
	ErrAllLayersFailed  = errors.New("every zone layer failed")
	ErrNoLayersDeclared = errors.New("no zone layers configured")
)

// MapHTTPStatus maps zone errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNoGeometry) || errors.Is(err, ErrMixedReferences) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrNoLayersDeclared) {
		return http.StatusInternalServerError
	}
	return arcgis.MapHTTPStatus(err)
}
