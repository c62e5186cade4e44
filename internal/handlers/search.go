package handlers

import (
	"net/http"
	"strconv"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"

	"github.com/mkovalev/emarket/internal/service/search"
	"github.com/mkovalev/emarket/internal/util"
)

type SearchHandler struct {
	ES    *elasticsearch.Client
	Index string
}

func (h *SearchHandler) Search(c echo.Context) error {
	if h.ES == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "search unavailable")
	}

	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter q is required")
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	from, size := util.Calculate(page, size)

	ctx := c.Request().Context()
	total, products, err := search.Search(ctx, h.ES, h.Index, q, from, size)
	if err != nil {
		c.Logger().Errorf("search error: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "search unavailable")
	}
	return c.JSON(http.StatusOK, echo.Map{"total": total, "products": products})
}
