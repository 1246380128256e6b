package http

import (
	"errors"
	"net/http"

	"github.com/jmehdipour/campaign-orchestrator/internal/repository"
	"github.com/jmehdipour/campaign-orchestrator/internal/service/contacts"
	"github.com/labstack/echo/v4"
)

const maxUploadBytes = 5 << 20

func listContactsHandler(store repository.ContactRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		cs, err := store.ListContacts(c.Request().Context())
		if err != nil {
			return storeError(c, "list contacts", err)
		}
		return c.JSON(http.StatusOK, map[string]any{"count": len(cs), "results": cs})
	}
}

// uploadContactsHandler replaces the contact list with a CSV sent as the
// multipart field "file".
func uploadContactsHandler(svc *contacts.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return jsonError(c, http.StatusBadRequest, "missing file")
		}
		if fh.Size > maxUploadBytes {
			return jsonError(c, http.StatusRequestEntityTooLarge, "file too large")
		}
		f, err := fh.Open()
		if err != nil {
			return jsonError(c, http.StatusBadRequest, "unreadable file")
		}
		defer f.Close()

		res, err := svc.Import(c.Request().Context(), f)
		switch {
		case errors.Is(err, contacts.ErrNoValidContacts):
			return c.JSON(http.StatusUnprocessableEntity, map[string]any{"error": err.Error(), "invalid": res.Invalid})
		case err != nil:
			c.Logger().Errorf("import contacts failed: %v", err)
			return jsonError(c, http.StatusBadRequest, "import failed")
		}
		return c.JSON(http.StatusOK, res)
	}
}

func clearContactsHandler(store repository.ContactRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := store.ClearContacts(c.Request().Context()); err != nil {
			return storeError(c, "clear contacts", err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
