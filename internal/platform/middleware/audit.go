package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rcfe/casesync/internal/platform/auth"
)

// AuditEntry records who touched which API resource.
type AuditEntry struct {
	Subject    string
	Email      string
	Roles      []string
	Resource   string
	ResourceID string
	Action     string // read, create, update
	Method     string
	Path       string
	IPAddress  string
	RequestID  string
	StatusCode int
	Timestamp  time.Time
}

// AuditRecorder persists audit entries somewhere other than the log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs one "api_access" line per /api/v1 request after the handler
// ran. Member lookups, visit submissions and claim changes all pass here.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			entry := AuditEntry{
				Method:     req.Method,
				Path:       req.URL.Path,
				IPAddress:  c.RealIP(),
				Action:     methodAction(req.Method),
				StatusCode: c.Response().Status,
				Timestamp:  time.Now().UTC(),
			}
			if he, ok := err.(*echo.HTTPError); ok {
				entry.StatusCode = he.Code
			}
			entry.Resource, entry.ResourceID = resourceFromPath(req.URL.Path)
			if entry.ResourceID == "" {
				entry.ResourceID = c.QueryParam("staffId")
			}
			entry.RequestID, _ = c.Get("request_id").(string)
			if id, ok := auth.IdentityFromContext(req.Context()); ok {
				entry.Subject = id.Subject
				entry.Email = id.Email
				entry.Roles = id.Roles
			}

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).Str("request_id", entry.RequestID).Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("subject", entry.Subject).
				Str("email", entry.Email).
				Strs("roles", entry.Roles).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("api_access")

			return err
		}
	}
}

func methodAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// resourceFromPath maps /api/v1/visits/abc/signoff to ("visits", "abc").
func resourceFromPath(path string) (string, string) {
	segments := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/v1/"), "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "unknown", ""
	}
	if len(segments) > 1 && segments[0] != "members" {
		return segments[0], segments[1]
	}
	return segments[0], ""
}
