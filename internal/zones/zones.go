package zones

// Membership lists the zone layers a geometry intersects. Layers that could
// not be queried are reported in Failed rather than omitted.
type Membership struct {
	Zones  []string       `json:"zones"`
	Failed []LayerFailure `json:"failed,omitempty"`
}

// Partial reports whether any layer failed.
func (m *Membership) Partial() bool {
	return len(m.Failed) > 0
}

// LayerFailure records a layer whose intersect query failed.
type LayerFailure struct {
	Layer   string `json:"layer"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

// EnglandResult is the response of an England membership check.
type EnglandResult struct {
	IsInEngland bool `json:"isInEngland"`
}
