package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/jmehdipour/campaign-orchestrator/internal/repository"
	"github.com/labstack/echo/v4"
)

func jsonError(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

// storeError maps repository failures to a response, logging the unexpected ones.
func storeError(c echo.Context, op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return jsonError(c, http.StatusNotFound, "not found")
	}
	c.Logger().Errorf("%s failed: %v", op, err)
	return jsonError(c, http.StatusInternalServerError, "storage error")
}

func pathID(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func queryLimit(c echo.Context, def, max int) int {
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= max {
			return n
		}
	}
	return def
}
