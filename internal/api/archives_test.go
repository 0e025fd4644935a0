package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JaimeStill/canopy/pkg/routes"
	"github.com/JaimeStill/canopy/pkg/storage"
)

func newArchiveMux(t *testing.T) (*http.ServeMux, storage.System) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemory(logger)
	ctx := context.Background()
	store.Upload(ctx, "exports/ref-1/map.pdf", strings.NewReader("%PDF-1.7"), "application/pdf")
	store.Upload(ctx, "exports/ref-2/map.png", strings.NewReader("png"), "image/png")
	store.Upload(ctx, "scratch/other.txt", strings.NewReader("x"), "text/plain")

	mux := http.NewServeMux()
	routes.Register(mux, newArchiveHandler(store, logger, 50).routes())
	return mux, store
}

func TestArchiveList(t *testing.T) {
	mux, _ := newArchiveMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/archives", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var list storage.BlobList
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list.Blobs) != 2 {
		t.Errorf("blobs = %+v", list.Blobs)
	}
}

func TestArchiveListByRef(t *testing.T) {
	mux, _ := newArchiveMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/archives?ref=ref-2", nil))

	var list storage.BlobList
	json.NewDecoder(rec.Body).Decode(&list)
	if len(list.Blobs) != 1 || list.Blobs[0].Name != "exports/ref-2/map.png" {
		t.Errorf("blobs = %+v", list.Blobs)
	}
}

func TestArchiveDownload(t *testing.T) {
	mux, _ := newArchiveMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/archives/download/ref-1/map.pdf", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %s", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, `"map.pdf"`) {
		t.Errorf("content disposition = %s", cd)
	}
	if rec.Body.String() != "%PDF-1.7" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestArchiveErrors(t *testing.T) {
	mux, _ := newArchiveMux(t)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"missing blob", "/archives/ref-9/map.pdf", http.StatusNotFound},
		{"missing download", "/archives/download/ref-9/map.pdf", http.StatusNotFound},
		{"bad max results", "/archives?max_results=zero", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest("GET", tt.path, nil))
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}
