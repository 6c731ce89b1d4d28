package members

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rcfe/casesync/internal/platform/auth"
)

type Handler struct {
	cache     *Cache
	refresher *Refresher
}

func NewHandler(cache *Cache, refresher *Refresher) *Handler {
	return &Handler{cache: cache, refresher: refresher}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/members", auth.RequireRole("admin", "supervisor"))
	g.POST("/sync", h.TriggerSync)
	g.GET("/sync-status", h.SyncStatus)
}

// TriggerSync queues a sync on the refresher, or runs it inline with ?wait=true.
func (h *Handler) TriggerSync(c echo.Context) error {
	mode, ok := ParseSyncMode(c.QueryParam("mode"))
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "mode must be full or incremental")
	}
	if c.QueryParam("wait") != "true" && h.refresher != nil {
		queued := h.refresher.Trigger(mode)
		return c.JSON(http.StatusAccepted, map[string]interface{}{"mode": mode, "queued": queued})
	}
	res, err := h.cache.Sync(c.Request().Context(), mode, nil)
	if errors.Is(err, ErrCacheUnavailable) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) SyncStatus(c echo.Context) error {
	st, err := h.cache.Status(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := map[string]interface{}{"cache": st}
	if h.refresher != nil {
		resp["refresher"] = h.refresher.State()
	}
	return c.JSON(http.StatusOK, resp)
}
