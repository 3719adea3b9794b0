// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func OpenSession(app *App) echo.HandlerFunc {
	return func(c echo.Context) error {
		s := app.Sessions.Open()
		state, err := s.State()
		if err != nil {
			return errorResponse(app, c, err)
		}
		return c.JSONPretty(http.StatusCreated, state, "  ")
	}
}

func GetSession(app *App) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := getSession(app, c)
		if err != nil {
			return errorResponse(app, c, err)
		}
		state, err := s.State()
		if err != nil {
			return errorResponse(app, c, err)
		}
		return c.JSONPretty(http.StatusOK, state, "  ")
	}
}

func CloseSession(app *App) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := app.Sessions.Close(c.Param("sid")); err != nil {
			return errorResponse(app, c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func RunAll(app *App) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := getSession(app, c)
		if err != nil {
			return errorResponse(app, c, err)
		}
		n, err := s.RunAll()
		if err != nil {
			return errorResponse(app, c, err)
		}
		return c.JSONPretty(http.StatusAccepted, struct {
			Submitted int `json:"submitted"`
		}{Submitted: n}, "  ")
	}
}

func Copilot(app *App) echo.HandlerFunc {
	return func(c echo.Context) error {
		var request struct {
			Instruction string `json:"instruction"`
		}
		if err := c.Bind(&request); err != nil {
			return invalidRequest(c, "Invalid request")
		}
		s, err := getSession(app, c)
		if err != nil {
			return errorResponse(app, c, err)
		}
		if err := s.Copilot(request.Instruction); err != nil {
			return errorResponse(app, c, err)
		}
		return c.NoContent(http.StatusAccepted)
	}
}
