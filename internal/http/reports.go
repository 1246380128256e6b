package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/jmehdipour/campaign-orchestrator/internal/model"
	"github.com/jmehdipour/campaign-orchestrator/internal/repository"
	echo "github.com/labstack/echo/v4"
)

// listArchivedLogsHandler serves the full log history from ClickHouse.
func listArchivedLogsHandler(chRepo repository.CHLogsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		if chRepo == nil {
			return jsonError(c, http.StatusNotImplemented, "log archive disabled")
		}

		f := repository.ArchiveFilter{
			Limit:  50,
			RunID:  strings.TrimSpace(c.QueryParam("run_id")),
			Offset: 0,
		}
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				f.Limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				f.Offset = n
			}
		}
		if v := c.QueryParam("contact_id"); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				f.ContactID = n
			}
		}
		if raw := strings.TrimSpace(c.QueryParam("status")); raw != "" {
			if st := model.LogStatus(raw); st.Valid() {
				f.Status = st
			}
		}

		logs, err := chRepo.List(c.Request().Context(), f)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)

			return jsonError(c, http.StatusInternalServerError, "query failed")
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   f.Limit,
			"offset":  f.Offset,
			"count":   len(logs),
			"results": logs,
		})
	}
}
