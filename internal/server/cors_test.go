package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizeOrigin(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: ""},
		{in: " HTTPS://App.Example.com ", want: "https://app.example.com"},
		{in: "http://localhost:3000", want: "http://localhost:3000"},
		{in: "app.example.com", wantErr: true},
		{in: "://bad", wantErr: true},
	}
	for _, tc := range tests {
		got, err := normalizeOrigin(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("normalizeOrigin(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("normalizeOrigin(%q) error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("normalizeOrigin(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCORSWildcardWins(t *testing.T) {
	c, err := newCORS(CORSConfig{AllowedOrigins: []string{"https://a.example.com", "*"}}, nil)
	if err != nil {
		t.Fatalf("newCORS error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	req.Header.Set("Origin", "https://b.example.com")
	rec := httptest.NewRecorder()
	c.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("unexpected allow origin header: %q", got)
	}
	if got := rec.Header().Get("Access-Control-Expose-Headers"); got == "" {
		t.Fatal("expected exposed headers")
	}
}

func TestCORSPreflightRejectsUnlistedMethod(t *testing.T) {
	c, err := newCORS(CORSConfig{}, nil)
	if err != nil {
		t.Fatalf("newCORS error: %v", err)
	}

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/users", nil)
	req.Header.Set("Origin", "https://a.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec := httptest.NewRecorder()
	c.Handler(http.NotFoundHandler()).ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "" {
		t.Fatalf("expected no allowed methods for PUT, got %q", got)
	}
}
