// Package spatial provides the value types and pure coordinate math used by the
// GIS integration engine: spatial references, envelopes, Esri JSON geometry,
// Web Mercator transforms, OS grid references, and geometry simplification.
// Nothing in this package performs I/O.
package spatial

import "fmt"

// Well-known WKIDs.
const (
	WGS84               = 4326
	WebMercator         = 3857
	WebMercatorLegacy   = 102100
	BritishNationalGrid = 27700
)

// SpatialReference identifies a coordinate system by WKID. It is a value type;
// copy it rather than sharing a pointer.
type SpatialReference struct {
	WKID       int `json:"wkid"`
	LatestWKID int `json:"latestWkid,omitempty"`
}

// NewSpatialReference returns a SpatialReference for wkid, filling LatestWKID
// for the legacy Web Mercator code.
func NewSpatialReference(wkid int) SpatialReference {
	sr := SpatialReference{WKID: wkid}
	if wkid == WebMercatorLegacy {
		sr.LatestWKID = WebMercator
	}
	return sr
}

// IsZero reports whether no coordinate system has been resolved.
func (sr SpatialReference) IsZero() bool {
	return sr.WKID == 0 && sr.LatestWKID == 0
}

// Code returns the preferred WKID, favouring LatestWKID when present.
func (sr SpatialReference) Code() int {
	if sr.LatestWKID != 0 {
		return sr.LatestWKID
	}
	if sr.WKID == WebMercatorLegacy {
		return WebMercator
	}
	return sr.WKID
}

// Equal reports whether both references identify the same coordinate system.
func (sr SpatialReference) Equal(other SpatialReference) bool {
	if sr.IsZero() || other.IsZero() {
		return false
	}
	return sr.Code() == other.Code()
}

func (sr SpatialReference) String() string {
	return fmt.Sprintf("EPSG:%d", sr.Code())
}
