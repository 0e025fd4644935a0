package pagination_test

import (
	"encoding/json"
	"net/url"
	"strings"
	"testing"

	"github.com/JaimeStill/canopy/pkg/pagination"
)

func defaultConfig() pagination.Config {
	return pagination.Config{DefaultPageSize: 20, MaxPageSize: 100}
}

func TestConfigFinalize(t *testing.T) {
	t.Setenv("CANOPY_TEST_PAGE_SIZE", "50")

	t.Setenv("CANOPY_TEST_SEARCH_LENGTH", "32")

	cfg := pagination.Config{}
	err := cfg.Finalize(&pagination.ConfigEnv{
		DefaultPageSize: "CANOPY_TEST_PAGE_SIZE",
		MaxSearchLength: "CANOPY_TEST_SEARCH_LENGTH",
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if cfg.DefaultPageSize != 50 || cfg.MaxPageSize != 100 || cfg.MaxSearchLength != 32 {
		t.Errorf("cfg = %+v, want default 50 max 100 search 32", cfg)
	}

	bad := pagination.Config{DefaultPageSize: 200, MaxPageSize: 100}
	if err := bad.Finalize(nil); err == nil || !strings.Contains(err.Error(), "cannot exceed") {
		t.Errorf("expected default/max validation error, got %v", err)
	}
}

func TestPageRequestNormalize(t *testing.T) {
	tests := []struct {
		name         string
		req          pagination.PageRequest
		wantPage     int
		wantPageSize int
		wantOffset   int
	}{
		{"zero values", pagination.PageRequest{}, 1, 20, 0},
		{"negative page", pagination.PageRequest{Page: -1, PageSize: 10}, 1, 10, 0},
		{"clamped size", pagination.PageRequest{Page: 2, PageSize: 500}, 2, 100, 100},
		{"preserved", pagination.PageRequest{Page: 3, PageSize: 25}, 3, 25, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Normalize(defaultConfig())
			if tt.req.Page != tt.wantPage || tt.req.PageSize != tt.wantPageSize {
				t.Errorf("got page %d size %d, want %d/%d", tt.req.Page, tt.req.PageSize, tt.wantPage, tt.wantPageSize)
			}
			if got := tt.req.Offset(); got != tt.wantOffset {
				t.Errorf("Offset() = %d, want %d", got, tt.wantOffset)
			}
		})
	}
}

func TestPageRequestNormalizeSearch(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxSearchLength = 8

	tests := []struct {
		name   string
		search string
		want   *string
	}{
		{"trimmed", "  FLA-001 ", ptr("FLA-001")},
		{"blank dropped", "   ", nil},
		{"capped", "FLA-001-cpt-7", ptr("FLA-001-")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := pagination.PageRequest{Search: ptr(tt.search)}
			req.Normalize(cfg)
			switch {
			case tt.want == nil && req.Search != nil:
				t.Errorf("search = %q, want nil", *req.Search)
			case tt.want != nil && (req.Search == nil || *req.Search != *tt.want):
				t.Errorf("search = %v, want %q", req.Search, *tt.want)
			}
		})
	}
}

func ptr(s string) *string { return &s }

func TestPageRequestFromQuery(t *testing.T) {
	values := url.Values{
		"page":      {"2"},
		"page_size": {"15"},
		"search":    {"FLA-001"},
		"sort":      {"case_id,-published_at"},
	}

	req := pagination.PageRequestFromQuery(values, defaultConfig())

	if req.Page != 2 || req.PageSize != 15 {
		t.Errorf("page = %d size = %d", req.Page, req.PageSize)
	}
	if req.Search == nil || *req.Search != "FLA-001" {
		t.Errorf("search = %v", req.Search)
	}
	if len(req.Sort) != 2 || req.Sort[0].Field != "case_id" || !req.Sort[1].Descending {
		t.Errorf("sort = %+v", req.Sort)
	}

	empty := pagination.PageRequestFromQuery(url.Values{}, defaultConfig())
	if empty.Page != 1 || empty.PageSize != 20 || empty.Search != nil || len(empty.Sort) != 0 {
		t.Errorf("defaults not applied: %+v", empty)
	}
}

func TestSortFieldsUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"string form", `{"sort":"-published_at"}`},
		{"array form", `{"sort":[{"Field":"published_at","Descending":true}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req pagination.PageRequest
			if err := json.Unmarshal([]byte(tt.body), &req); err != nil {
				t.Fatal(err)
			}
			if len(req.Sort) != 1 || req.Sort[0].Field != "published_at" || !req.Sort[0].Descending {
				t.Errorf("sort = %+v", req.Sort)
			}
		})
	}
}

func TestNewPageResult(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		page      int
		pageSize  int
		wantPages int
		wantMore  bool
	}{
		{"exact", 40, 1, 20, 2, true},
		{"remainder last page", 41, 3, 20, 3, false},
		{"empty", 0, 1, 20, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := pagination.NewPageResult[string](nil, tt.total, tt.page, tt.pageSize)
			if result.TotalPages != tt.wantPages {
				t.Errorf("TotalPages = %d, want %d", result.TotalPages, tt.wantPages)
			}
			if result.HasMore != tt.wantMore {
				t.Errorf("HasMore = %v, want %v", result.HasMore, tt.wantMore)
			}
			if result.Data == nil {
				t.Error("nil data not replaced with empty slice")
			}
		})
	}
}
