package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// Health checks and the Prometheus scrape run without a caller token. Everything
// under /api/v1 needs one.
var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
	"/metrics":   true,
}

// AuthSkipper matches the registered route first and falls back to the raw
// URL path, so an unrouted request still needs a token before it gets a 404.
func AuthSkipper(c echo.Context) bool {
	if route := c.Path(); route != "" {
		return publicPaths[route]
	}
	return IsPublicPath(c.Request().URL.Path)
}

// IsPublicPath ignores a trailing slash: "/health/" is public too.
func IsPublicPath(path string) bool {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return publicPaths[path]
}
