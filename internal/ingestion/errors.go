package ingestion

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/canopy/pkg/arcgis"
)

// ErrInvalidSimplification indicates simplification options out of range.
var ErrInvalidSimplification = errors.New("invalid simplification options")

// MapHTTPStatus maps ingestion errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrInvalidSimplification) {
		return http.StatusBadRequest
	}
	return arcgis.MapHTTPStatus(err)
}
