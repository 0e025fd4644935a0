package handlers_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JaimeStill/canopy/pkg/handlers"
)

func TestRespondJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	handlers.RespondJSON(rec, http.StatusCreated, map[string]int{"added": 3})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var body map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["added"] != 3 {
		t.Errorf("body = %v", body)
	}
}

func TestRespondError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	rec := httptest.NewRecorder()
	handlers.RespondError(rec, logger, http.StatusBadGateway, errors.New("provider unavailable"))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d", rec.Code)
	}

	var body map[string]string
	json.NewDecoder(rec.Body).Decode(&body)
	if body["error"] != "provider unavailable" {
		t.Errorf("body = %v", body)
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Status string `json:"status"`
	}

	tests := []struct {
		name    string
		body    string
		want    string
		wantErr error
	}{
		{"valid", `{"status":"approved"}`, "approved", nil},
		{"empty", ``, "", handlers.ErrEmptyBody},
		{"malformed", `{"status":`, "", errors.New("decode")},
		{"trailing", `{"status":"a"}{"status":"b"}`, "", errors.New("trailing")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/", strings.NewReader(tt.body))

			var p payload
			err := handlers.DecodeJSON(req, &p)

			switch {
			case tt.wantErr == nil:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if p.Status != tt.want {
					t.Errorf("status = %q", p.Status)
				}
			case errors.Is(tt.wantErr, handlers.ErrEmptyBody):
				if !errors.Is(err, handlers.ErrEmptyBody) {
					t.Errorf("err = %v, want ErrEmptyBody", err)
				}
			default:
				if err == nil || !strings.Contains(err.Error(), tt.wantErr.Error()) {
					t.Errorf("err = %v, want containing %q", err, tt.wantErr)
				}
			}
		})
	}
}
