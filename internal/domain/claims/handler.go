package claims

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rcfe/casesync/internal/platform/auth"
	"github.com/rcfe/casesync/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole("billing", "supervisor"))
	read.GET("/claims", h.ListClaims)
	read.GET("/claims/:id", h.GetClaim)

	write := api.Group("", auth.RequireRole("billing"))
	write.PATCH("/claims/:id/status", h.UpdateStatus)
}

func (h *Handler) ListClaims(c echo.Context) error {
	var day *time.Time
	if d := c.QueryParam("date"); d != "" {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "date must be yyyy-mm-dd")
		}
		day = &t
	}
	page := pagination.FromContext(c)

	items, total, err := h.svc.List(c.Request().Context(), c.QueryParam("staff"), day, page.Limit, page.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Draft{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, page))
}

func (h *Handler) GetClaim(c echo.Context) error {
	d, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "claim not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, d)
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft submitted approved paid rejected"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if c.Echo().Validator != nil {
		if err := c.Validate(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	d, err := h.svc.UpdateStatus(c.Request().Context(), c.Param("id"), req.Status)
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "claim not found")
	case errors.Is(err, ErrInvalidStatus):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, d)
}
