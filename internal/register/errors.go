package register

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/canopy/pkg/arcgis"
)

// Domain errors for register publishing.
var (
	ErrInvalidCommand    = errors.New("invalid publish command")
	ErrPublishFailed     = errors.New("no feature was published")
	ErrNotFound          = errors.New("ledger entry not found")
	ErrDuplicate         = errors.New("ledger entry already exists")
	ErrLedgerUnavailable = errors.New("publish ledger unavailable")
)

// MapHTTPStatus maps register errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrInvalidCommand) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrDuplicate) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrLedgerUnavailable) {
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, ErrPublishFailed) {
		return http.StatusBadGateway
	}
	return arcgis.MapHTTPStatus(err)
}
