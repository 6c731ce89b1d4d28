package accesslog

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rcfe/casesync/internal/platform/auth"
	"github.com/rcfe/casesync/pkg/pagination"
)

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/audit", auth.RequireRole("admin", "supervisor"))
	g.GET("/access", h.Search)
}

// Search lists access entries newest first. start and end take RFC3339.
func (h *Handler) Search(c echo.Context) error {
	page := pagination.FromContext(c)
	p := SearchParams{
		Subject:    c.QueryParam("subject"),
		Resource:   c.QueryParam("resource"),
		ResourceID: c.QueryParam("resource_id"),
		Action:     c.QueryParam("action"),
		Limit:      page.Limit,
		Offset:     page.Offset,
	}
	for name, dst := range map[string]**time.Time{"start": &p.Start, "end": &p.End} {
		v := c.QueryParam(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, name+" must be RFC3339")
		}
		*dst = &t
	}

	entries, total, err := h.store.Search(c.Request().Context(), p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if entries == nil {
		entries = []*Entry{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, page))
}
