package register

import (
	"net/url"
	"strconv"
	"time"

	"github.com/JaimeStill/canopy/pkg/query"
	"github.com/JaimeStill/canopy/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "register_features", "r").
	Project("provider", "Provider").
	Project("case_id", "CaseID").
	Project("feature_key", "FeatureKey").
	Project("object_id", "ObjectID").
	Project("status_code", "StatusCode").
	Project("content_hash", "ContentHash").
	Project("batch_id", "BatchID").
	Project("published_at", "PublishedAt")

var defaultSort = query.SortField{
	Field:      "PublishedAt",
	Descending: true,
}

// Filters narrows ledger listings. Nil fields are ignored. FeatureKey uses
// case-insensitive contains matching; Since keeps entries published at or
// after it; the rest match exactly.
type Filters struct {
	Provider   *string    `json:"provider,omitempty"`
	CaseID     *string    `json:"case_id,omitempty"`
	FeatureKey *string    `json:"feature_key,omitempty"`
	StatusCode *int       `json:"status_code,omitempty"`
	BatchID    *string    `json:"batch_id,omitempty"`
	Since      *time.Time `json:"since,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Provider", f.Provider).
		WhereEquals("CaseID", f.CaseID).
		WhereContains("FeatureKey", f.FeatureKey).
		WhereEquals("StatusCode", f.StatusCode).
		WhereEquals("BatchID", f.BatchID).
		WhereSince("PublishedAt", f.Since)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if p := values.Get("provider"); p != "" {
		f.Provider = &p
	}

	if c := values.Get("case_id"); c != "" {
		f.CaseID = &c
	}

	if k := values.Get("feature_key"); k != "" {
		f.FeatureKey = &k
	}

	if sc := values.Get("status_code"); sc != "" {
		if v, err := strconv.Atoi(sc); err == nil {
			f.StatusCode = &v
		}
	}

	if b := values.Get("batch_id"); b != "" {
		f.BatchID = &b
	}

	if s := values.Get("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			f.Since = &t
		}
	}

	return f
}

func entryArgs(e Entry) []any {
	return []any{
		e.Provider, e.CaseID, e.FeatureKey, e.ObjectID,
		e.StatusCode, e.ContentHash, e.BatchID, e.PublishedAt,
	}
}

func scanEntry(s repository.Scanner) (Entry, error) {
	var e Entry
	err := s.Scan(
		&e.Provider,
		&e.CaseID,
		&e.FeatureKey,
		&e.ObjectID,
		&e.StatusCode,
		&e.ContentHash,
		&e.BatchID,
		&e.PublishedAt,
	)
	return e, err
}
