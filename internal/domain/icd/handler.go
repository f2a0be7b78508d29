package icd

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/icdreview/icdreview/internal/platform/metrics"
)

type Handler struct {
	svc *Service
	m   *metrics.Metrics
}

func NewHandler(svc *Service, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, m: m}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/search_icd_codes", h.Search)
}

func (h *Handler) Search(c echo.Context) error {
	query := c.QueryParam("search_string")
	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	results, err := h.svc.Search(c.Request().Context(), query, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if h.m != nil {
		h.m.ICDSearchesTotal.Inc()
	}
	return c.JSON(http.StatusOK, results)
}
