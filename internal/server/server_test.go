package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ootdStylist/internal/stylist"
)

func TestRoutes(t *testing.T) {
	mediaDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(mediaDir, "card.png"), []byte("png"), 0o644); err != nil {
		t.Fatalf("write media file: %v", err)
	}

	o := stylist.New(stylist.Options{})
	srv := New(Options{
		Port:        "0",
		Media:       http.FileServer(http.Dir(mediaDir)),
		MediaPrefix: "/media",
	}, stylist.Handler{Stylist: o})

	if srv.WriteTimeout != 3*time.Minute {
		t.Errorf("WriteTimeout = %v", srv.WriteTimeout)
	}

	tests := []struct {
		method, path string
		status       int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodPost, "/api/sessions", http.StatusCreated},
		{http.MethodGet, "/api/sessions/unknown", http.StatusNotFound},
		{http.MethodPost, "/api/sessions/unknown/reset", http.StatusNotFound},
		{http.MethodDelete, "/api/sessions/unknown", http.StatusNotFound},
		{http.MethodGet, "/media/card.png", http.StatusOK},
		{http.MethodGet, "/nowhere", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.status {
			t.Errorf("%s %s status = %d, want %d", tt.method, tt.path, rec.Code, tt.status)
		}
	}
}
