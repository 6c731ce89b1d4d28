package visits

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/rcfe/casesync/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("staff", "social_worker", "supervisor"))
	g.POST("/visits", h.SubmitVisit)
	g.GET("/visits/:id", h.GetVisit)
	g.POST("/visits/:id/signoff", h.SignOff)
}

// rejectionStatus maps a rejection reason to its HTTP status.
func rejectionStatus(reason string) int {
	switch reason {
	case ReasonValidation:
		return http.StatusBadRequest
	case ReasonDuplicateMonth:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

func (h *Handler) SubmitVisit(c echo.Context) error {
	var sub Submission
	if err := c.Bind(&sub); err != nil {
		return c.JSON(http.StatusBadRequest, &RejectionError{Reason: ReasonValidation, Message: "invalid JSON body"})
	}
	// The verified caller wins over whatever the form says about the account.
	if id, ok := auth.IdentityFromContext(c.Request().Context()); ok {
		if id.AccountID != "" {
			sub.StaffAccountID = id.AccountID
		}
		if sub.StaffEmail == "" {
			sub.StaffEmail = id.Email
		}
		if sub.StaffName == "" {
			sub.StaffName = id.Name
		}
	}

	out, err := h.svc.Submit(c.Request().Context(), sub)
	var rej *RejectionError
	if errors.As(err, &rej) {
		return c.JSON(rejectionStatus(rej.Reason), rej)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) GetVisit(c echo.Context) error {
	rec, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "visit not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) SignOff(c echo.Context) error {
	signer := ""
	if id, ok := auth.IdentityFromContext(c.Request().Context()); ok {
		signer = id.Email
		if signer == "" {
			signer = id.Subject
		}
	}
	rec, err := h.svc.SignOff(c.Request().Context(), c.Param("id"), strings.TrimSpace(signer))
	var rej *RejectionError
	switch {
	case errors.As(err, &rej):
		return c.JSON(rejectionStatus(rej.Reason), rej)
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "visit not found")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}
