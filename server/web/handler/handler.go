// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"vizboard/server/comms"
	"vizboard/server/core"
	"vizboard/server/semantic"
	"vizboard/server/session"
)

type App struct {
	Logger   *slog.Logger
	Sessions *session.Manager
	Events   *comms.EventBus

	// LoginRequired is reported to clients. Routes enforce auth on their own.
	LoginRequired bool
}

// errorResponse maps domain errors to status codes. Anything unknown is
// logged and returned as 500.
func errorResponse(app *App, c echo.Context, err error) error {
	status := http.StatusInternalServerError
	var (
		notFound   *core.NotFoundError
		validation *core.ValidationError
		conflict   *core.ConflictError
		apiErr     *semantic.APIError
	)
	switch {
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &validation):
		status = http.StatusBadRequest
	case errors.As(err, &conflict):
		status = http.StatusConflict
	case errors.As(err, &apiErr):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		app.Logger.Error("Request failed", slog.String("path", c.Path()), slog.Any("error", err))
	}
	return c.JSONPretty(status, struct {
		Error string `json:"error"`
	}{Error: err.Error()}, "  ")
}

func invalidRequest(c echo.Context, message string) error {
	return c.JSONPretty(http.StatusBadRequest, struct {
		Error string `json:"error"`
	}{Error: message}, "  ")
}

func getSession(app *App, c echo.Context) (*session.Session, error) {
	return app.Sessions.Get(c.Param("sid"))
}
