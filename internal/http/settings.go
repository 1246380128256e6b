package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/jmehdipour/campaign-orchestrator/internal/model"
	"github.com/jmehdipour/campaign-orchestrator/internal/repository"
	"github.com/labstack/echo/v4"
)

type settingsStore interface {
	repository.SettingsRepository
	repository.VariantRepository
}

func getSettingsHandler(store settingsStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		st, err := store.GetSettings(c.Request().Context())
		if err != nil {
			return storeError(c, "get settings", err)
		}
		if st == nil {
			def := model.DefaultSettings()
			st = &def
		}
		return c.JSON(http.StatusOK, st)
	}
}

type settingsReq struct {
	MinIntervalSeconds int    `json:"minIntervalSeconds"`
	MaxIntervalSeconds int    `json:"maxIntervalSeconds"`
	RotationType       string `json:"rotationType"`
	RandomizeVariants  bool   `json:"randomizeVariants"`
	SkipErrors         bool   `json:"skipErrors"`
}

func (r settingsReq) validate() error {
	if r.MinIntervalSeconds < 1 {
		return errors.New("minIntervalSeconds must be at least 1")
	}
	if r.MaxIntervalSeconds < r.MinIntervalSeconds {
		return errors.New("maxIntervalSeconds must not be below minIntervalSeconds")
	}
	if !model.RotationType(r.RotationType).Valid() {
		return errors.New("rotationType must be sequential or random")
	}
	return nil
}

func (r settingsReq) apply(st *model.Settings) {
	st.MinIntervalSeconds = r.MinIntervalSeconds
	st.MaxIntervalSeconds = r.MaxIntervalSeconds
	st.RotationType = model.RotationType(r.RotationType)
	st.RandomizeVariants = r.RandomizeVariants
	st.SkipErrors = r.SkipErrors
}

// putSettingsHandler edits the tunables only. Cursors and the running flag
// belong to the scheduler.
func putSettingsHandler(store settingsStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req settingsReq
		if err := c.Bind(&req); err != nil {
			return jsonError(c, http.StatusBadRequest, "bad request")
		}
		req.RotationType = strings.ToLower(strings.TrimSpace(req.RotationType))
		if req.RotationType == "" {
			req.RotationType = string(model.RotationSequential)
		}
		if err := req.validate(); err != nil {
			return jsonError(c, http.StatusBadRequest, err.Error())
		}

		ctx := c.Request().Context()
		st, err := store.UpdateSettings(ctx, req.apply)
		if errors.Is(err, repository.ErrNotFound) {
			st = model.DefaultSettings()
			req.apply(&st)
			st, err = store.SaveSettings(ctx, st)
		}
		if err != nil {
			return storeError(c, "save settings", err)
		}
		return c.JSON(http.StatusOK, st)
	}
}

func listVariantsHandler(store settingsStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		vs, err := store.ListVariants(c.Request().Context())
		if err != nil {
			return storeError(c, "list variants", err)
		}
		return c.JSON(http.StatusOK, map[string]any{"count": len(vs), "results": vs})
	}
}

type variantReq struct {
	Text                      string  `json:"text"`
	MediaRef                  *string `json:"mediaRef"`
	Enabled                   bool    `json:"enabled"`
	SecondText                *string `json:"secondText"`
	SecondMediaRef            *string `json:"secondMediaRef"`
	SendSecondMessage         bool    `json:"sendSecondMessage"`
	SecondMessageDelaySeconds int     `json:"secondMessageDelaySeconds"`
}

// putVariantHandler writes the variant slot with the given ordinal.
func putVariantHandler(store settingsStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		ord, err := strconv.Atoi(c.Param("ordinal"))
		if err != nil || ord < 1 {
			return jsonError(c, http.StatusBadRequest, "invalid ordinal")
		}
		var req variantReq
		if err := c.Bind(&req); err != nil {
			return jsonError(c, http.StatusBadRequest, "bad request")
		}
		if req.SecondMessageDelaySeconds < 0 {
			return jsonError(c, http.StatusBadRequest, "secondMessageDelaySeconds must not be negative")
		}
		if req.SecondMessageDelaySeconds == 0 {
			req.SecondMessageDelaySeconds = model.DefaultSecondMessageDelaySeconds
		}

		v, err := store.UpsertVariant(c.Request().Context(), model.Variant{
			Ordinal:                   ord,
			Text:                      req.Text,
			MediaRef:                  req.MediaRef,
			Enabled:                   req.Enabled,
			SecondText:                req.SecondText,
			SecondMediaRef:            req.SecondMediaRef,
			SendSecondMessage:         req.SendSecondMessage,
			SecondMessageDelaySeconds: req.SecondMessageDelaySeconds,
		})
		if err != nil {
			return storeError(c, "upsert variant", err)
		}
		return c.JSON(http.StatusOK, v)
	}
}
