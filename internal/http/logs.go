package http

import (
	"net/http"

	"github.com/jmehdipour/campaign-orchestrator/internal/repository"
	"github.com/labstack/echo/v4"
)

func listLogsHandler(store repository.LogRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := queryLimit(c, 100, repository.LogCap)
		logs, err := store.ListLogs(c.Request().Context(), limit)
		if err != nil {
			return storeError(c, "list logs", err)
		}
		return c.JSON(http.StatusOK, map[string]any{"count": len(logs), "results": logs})
	}
}

func clearLogsHandler(store repository.LogRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := store.ClearLogs(c.Request().Context()); err != nil {
			return storeError(c, "clear logs", err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func listReceivedHandler(store repository.MessageRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := queryLimit(c, 100, repository.LogCap)
		msgs, err := store.ListReceived(c.Request().Context(), limit)
		if err != nil {
			return storeError(c, "list received", err)
		}
		return c.JSON(http.StatusOK, map[string]any{"count": len(msgs), "results": msgs})
	}
}

func listReceivedByContactHandler(store repository.MessageRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := pathID(c, "id")
		if !ok {
			return jsonError(c, http.StatusBadRequest, "invalid contact id")
		}
		msgs, err := store.ListReceivedByContact(c.Request().Context(), id)
		if err != nil {
			return storeError(c, "list received by contact", err)
		}
		return c.JSON(http.StatusOK, map[string]any{"count": len(msgs), "results": msgs})
	}
}

func clearReceivedHandler(store repository.MessageRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := store.ClearReceived(c.Request().Context()); err != nil {
			return storeError(c, "clear received", err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
