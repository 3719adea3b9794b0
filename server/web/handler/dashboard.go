// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"vizboard/server/session"
)

func ListDashboards(app *App) echo.HandlerFunc {
	return func(c echo.Context) error {
		dashboards, err := app.Sessions.ListDashboards(c.Request().Context())
		if err != nil {
			return errorResponse(app, c, err)
		}
		return c.JSONPretty(http.StatusOK, struct {
			Dashboards any `json:"dashboards"`
		}{Dashboards: dashboards}, "  ")
	}
}

func NewDraft(app *App) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := getSession(app, c)
		if err != nil {
			return errorResponse(app, c, err)
		}
		state, err := s.NewDraft()
		if err != nil {
			return errorResponse(app, c, err)
		}
		return c.JSONPretty(http.StatusOK, state, "  ")
	}
}

func LoadDashboard(app *App) echo.HandlerFunc {
	return func(c echo.Context) error {
		var request struct {
			DashboardID string `json:"dashboardId"`
		}
		if err := c.Bind(&request); err != nil {
			return invalidRequest(c, "Invalid request")
		}
		if strings.TrimSpace(request.DashboardID) == "" {
			return invalidRequest(c, "dashboardId is required")
		}
		s, err := getSession(app, c)
		if err != nil {
			return errorResponse(app, c, err)
		}
		state, err := s.Load(c.Request().Context(), request.DashboardID)
		if err != nil {
			return errorResponse(app, c, err)
		}
		return c.JSONPretty(http.StatusOK, state, "  ")
	}
}

func UpdateDashboard(app *App) echo.HandlerFunc {
	return func(c echo.Context) error {
		var patch session.DashboardPatch
		if err := c.Bind(&patch); err != nil {
			return invalidRequest(c, "Invalid request")
		}
		s, err := getSession(app, c)
		if err != nil {
			return errorResponse(app, c, err)
		}
		state, err := s.UpdateDashboard(patch)
		if err != nil {
			return errorResponse(app, c, err)
		}
		return c.JSONPretty(http.StatusOK, state, "  ")
	}
}

func SaveDashboard(app *App) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := getSession(app, c)
		if err != nil {
			return errorResponse(app, c, err)
		}
		state, err := s.Save(c.Request().Context())
		if err != nil {
			return errorResponse(app, c, err)
		}
		return c.JSONPretty(http.StatusOK, state, "  ")
	}
}

func DeleteDashboard(app *App) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := getSession(app, c)
		if err != nil {
			return errorResponse(app, c, err)
		}
		state, err := s.Delete(c.Request().Context())
		if err != nil {
			return errorResponse(app, c, err)
		}
		return c.JSONPretty(http.StatusOK, state, "  ")
	}
}
