package http

import (
	"net/http"
	"strings"

	"github.com/jmehdipour/campaign-orchestrator/internal/model"
	"github.com/jmehdipour/campaign-orchestrator/internal/repository"
	"github.com/labstack/echo/v4"
)

func listConnectionsHandler(store repository.ConnectionRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		conns, err := store.ListConnections(c.Request().Context())
		if err != nil {
			return storeError(c, "list connections", err)
		}
		return c.JSON(http.StatusOK, map[string]any{"count": len(conns), "results": conns})
	}
}

type connectionReq struct {
	Label string `json:"label"`
}

// createConnectionHandler adds a channel slot and asks the gateway to begin
// pairing it. The slot stays in "connecting" until lifecycle events arrive.
func createConnectionHandler(store repository.ConnectionRepository, gw Connector) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req connectionReq
		if err := c.Bind(&req); err != nil {
			return jsonError(c, http.StatusBadRequest, "bad request")
		}
		req.Label = strings.TrimSpace(req.Label)
		if req.Label == "" {
			return jsonError(c, http.StatusBadRequest, "label is required")
		}

		ctx := c.Request().Context()
		conn, err := store.CreateConnection(ctx, model.Connection{Label: req.Label, Status: model.ConnectionConnecting})
		if err != nil {
			return storeError(c, "create connection", err)
		}
		if gw != nil {
			if err := gw.Connect(ctx, conn.ID); err != nil {
				c.Logger().Warnf("connect channel %d: %v", conn.ID, err)
				conn, err = store.UpdateConnection(ctx, conn.ID, func(cn *model.Connection) {
					cn.Status = model.ConnectionError
				})
				if err != nil {
					return storeError(c, "update connection", err)
				}
			}
		}
		return c.JSON(http.StatusCreated, conn)
	}
}

// deleteConnectionHandler drops the slot first so the health refresh
// triggered by the gateway no longer sees it.
func deleteConnectionHandler(store repository.ConnectionRepository, gw Connector) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := pathID(c, "id")
		if !ok {
			return jsonError(c, http.StatusBadRequest, "invalid connection id")
		}
		ctx := c.Request().Context()
		if err := store.DeleteConnection(ctx, id); err != nil {
			return storeError(c, "delete connection", err)
		}
		if gw != nil {
			if err := gw.ForceDisconnect(ctx, id); err != nil {
				c.Logger().Warnf("disconnect deleted channel %d: %v", id, err)
			}
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func disconnectHandler(store repository.ConnectionRepository, gw Connector) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := pathID(c, "id")
		if !ok {
			return jsonError(c, http.StatusBadRequest, "invalid connection id")
		}
		ctx := c.Request().Context()
		updated, err := store.UpdateConnection(ctx, id, func(cn *model.Connection) {
			cn.Status = model.ConnectionDisconnected
			cn.PairingPayload = nil
		})
		if err != nil {
			return storeError(c, "update connection", err)
		}
		if gw != nil {
			if err := gw.ForceDisconnect(ctx, id); err != nil {
				c.Logger().Errorf("force disconnect %d: %v", id, err)
				return jsonError(c, http.StatusBadGateway, "gateway error")
			}
		}
		return c.JSON(http.StatusOK, updated)
	}
}
