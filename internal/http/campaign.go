package http

import (
	"errors"
	"net/http"

	"github.com/jmehdipour/campaign-orchestrator/internal/campaign"
	"github.com/labstack/echo/v4"
)

func campaignError(c echo.Context, op string, err error) error {
	var pe *campaign.PreconditionError
	switch {
	case errors.As(err, &pe):
		return jsonError(c, http.StatusUnprocessableEntity, pe.Error())
	case errors.Is(err, campaign.ErrAlreadyRunning):
		return jsonError(c, http.StatusConflict, err.Error())
	}
	c.Logger().Errorf("campaign %s failed: %v", op, err)
	return jsonError(c, http.StatusInternalServerError, "campaign "+op+" failed")
}

func startHandler(svc Campaign) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := svc.Start(c.Request().Context()); err != nil {
			return campaignError(c, "start", err)
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "started"})
	}
}

func pauseHandler(svc Campaign) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := svc.Pause(c.Request().Context()); err != nil {
			return campaignError(c, "pause", err)
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "paused"})
	}
}

type restartReq struct {
	ResetProgress *bool `json:"resetProgress"`
	ClearLogs     *bool `json:"clearLogs"`
}

// restartHandler resets progress and clears logs unless told otherwise.
func restartHandler(svc Campaign) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req restartReq
		if c.Request().ContentLength > 0 {
			if err := c.Bind(&req); err != nil {
				return jsonError(c, http.StatusBadRequest, "bad request")
			}
		}
		opts := campaign.RestartOptions{ResetProgress: true, ClearLogs: true}
		if req.ResetProgress != nil {
			opts.ResetProgress = *req.ResetProgress
		}
		if req.ClearLogs != nil {
			opts.ClearLogs = *req.ClearLogs
		}
		if err := svc.Restart(c.Request().Context(), opts); err != nil {
			return campaignError(c, "restart", err)
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "restarted"})
	}
}

func statsHandler(svc Campaign) echo.HandlerFunc {
	return func(c echo.Context) error {
		st, err := svc.GetStats(c.Request().Context())
		if err != nil {
			return storeError(c, "stats", err)
		}
		return c.JSON(http.StatusOK, st)
	}
}

func systemStatusHandler(sup Supervisor, fu FollowUps) echo.HandlerFunc {
	return func(c echo.Context) error {
		out := map[string]any{}
		if sup != nil {
			out["supervisor"] = sup.Status()
		}
		if fu != nil {
			out["followUps"] = fu.Stats()
		}
		return c.JSON(http.StatusOK, out)
	}
}
