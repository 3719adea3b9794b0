// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// GetSystemConfig tells clients how to talk to this server before they
// authenticate.
func GetSystemConfig(app *App) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"loginRequired":  app.LoginRequired,
			"copilotEnabled": app.Sessions.CopilotEnabled(),
			"pollIntervalMs": app.Sessions.PollInterval().Milliseconds(),
		})
	}
}
