package assignment

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rcfe/casesync/internal/domain/members"
	"github.com/rcfe/casesync/internal/platform/auth"
)

// Freshness reports the cache status and queues a refresh when stale.
type Freshness interface {
	EnsureFresh(ctx context.Context) (members.CacheStatus, error)
}

type Handler struct {
	resolver  *Resolver
	freshness Freshness
}

func NewHandler(resolver *Resolver, freshness Freshness) *Handler {
	return &Handler{resolver: resolver, freshness: freshness}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("staff", "social_worker", "supervisor"))
	g.GET("/assignments", h.GetAssignments)
}

type assignmentsResponse struct {
	RCFEList         []Group             `json:"rcfeList"`
	TotalMembers     int                 `json:"totalMembers"`
	TotalRCFEs       int                 `json:"totalRCFEs"`
	MembersSuspended int                 `json:"membersSuspended"`
	TotalAssignedAll int                 `json:"totalAssignedAll"`
	TotalMatched     int                 `json:"totalMatched"`
	Excluded         Excluded            `json:"excluded"`
	CacheStatus      members.CacheStatus `json:"cacheStatus"`
}

func (h *Handler) GetAssignments(c echo.Context) error {
	staffID := c.QueryParam("staffId")
	if staffID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "staffId is required")
	}
	ctx := c.Request().Context()

	status, err := h.freshness.EnsureFresh(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	res, err := h.resolver.ResolveAssignedMembers(ctx, staffID)
	switch {
	case errors.Is(err, members.ErrCacheEmpty):
		reason := "cache_empty"
		if status.LastError != "" {
			reason = "cache_unavailable"
		}
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"error":       reason,
			"message":     "member cache has no rows yet; a sync has been queued",
			"cacheStatus": status,
		})
	case errors.Is(err, ErrEmptyIdentifier):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	groups := res.Groups
	if groups == nil {
		groups = []Group{}
	}
	return c.JSON(http.StatusOK, assignmentsResponse{
		RCFEList:         groups,
		TotalMembers:     res.TotalMembers,
		TotalRCFEs:       len(groups),
		MembersSuspended: res.Excluded.Total(),
		TotalAssignedAll: res.TotalAssignedAll,
		TotalMatched:     res.TotalMatched,
		Excluded:         res.Excluded,
		CacheStatus:      status,
	})
}
