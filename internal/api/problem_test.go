package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mymindmirror/mindmirror/internal/crypto"
	"github.com/mymindmirror/mindmirror/internal/journal"
	"github.com/mymindmirror/mindmirror/internal/store"
)

func TestWriteProblem(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/entries/x", nil)
	rec := httptest.NewRecorder()

	WriteProblem(rec, req, http.StatusNotFound, "Entry not found")

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("expected problem content type, got %q", ct)
	}

	var p Problem
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.Title != "Not Found" || p.Detail != "Entry not found" || p.Instance != "/api/v1/entries/x" {
		t.Errorf("unexpected problem payload: %+v", p)
	}
}

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", store.ErrNotFound, http.StatusNotFound},
		{"not owner", journal.ErrNotOwner, http.StatusForbidden},
		{"no owner", journal.ErrNoOwner, http.StatusUnauthorized},
		{"no secret", crypto.ErrNoSecret, http.StatusBadRequest},
		{"internal", errors.New("db exploded"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			MapServiceError(rec, req, tt.err)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
			// Internal detail never leaks.
			if tt.name == "internal" && rec.Body.String() != "" {
				var p Problem
				if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
					t.Fatal(err)
				}
				if p.Detail != "Internal Server Error" {
					t.Errorf("internal error detail leaked: %q", p.Detail)
				}
			}
		})
	}
}
