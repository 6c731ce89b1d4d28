package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestAuthSkipper(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/health", true},
		{"/health/db", true},
		{"/metrics", true},
		{"/api/v1/assignments", false},
		{"/api/v1/visits", false},
		{"/api/v1/members/sync-status", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			e := echo.New()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, tt.path, nil), httptest.NewRecorder())
			c.SetPath(tt.path)
			if got := AuthSkipper(c); got != tt.want {
				t.Errorf("AuthSkipper(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestAuthSkipper_UnroutedRequestUsesURLPath(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/metrics", nil), httptest.NewRecorder())
	if !AuthSkipper(c) {
		t.Error("expected /metrics to be public before routing")
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil), httptest.NewRecorder())
	if AuthSkipper(c) {
		t.Error("expected unknown api path to require a token")
	}
}

func TestIsPublicPath_TrailingSlash(t *testing.T) {
	if !IsPublicPath("/health/") {
		t.Error("expected /health/ to be public")
	}
	if IsPublicPath("/") {
		t.Error("expected / to require a token")
	}
}
