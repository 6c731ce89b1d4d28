package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextWithRoles(roles ...string) context.Context {
	return WithIdentity(context.Background(), Identity{Subject: "u1", Roles: roles})
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  bool
	}{
		{"matching role", []string{"staff"}, true},
		{"admin passes", []string{"admin"}, true},
		{"other role", []string{"billing"}, false},
		{"no roles", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(contextWithRoles(tt.roles...))
			c := e.NewContext(req, httptest.NewRecorder())

			err := RequireRole("staff", "supervisor")(func(c echo.Context) error { return nil })(c)
			if tt.want && err != nil {
				t.Errorf("expected access, got %v", err)
			}
			if !tt.want {
				httpErr, ok := err.(*echo.HTTPError)
				if !ok || httpErr.Code != http.StatusForbidden {
					t.Errorf("expected 403, got %v", err)
				}
			}
		})
	}
}
