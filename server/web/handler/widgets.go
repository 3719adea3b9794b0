// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"

	"vizboard/server/session"
)

// bindWidget decodes the body only. echo's binder would also copy path
// params into the map.
func bindWidget(c echo.Context) (map[string]any, error) {
	raw := map[string]any{}
	if err := json.NewDecoder(c.Request().Body).Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func AddWidget(app *App) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, err := bindWidget(c)
		if err != nil {
			return invalidRequest(c, "Invalid request")
		}
		s, err := getSession(app, c)
		if err != nil {
			return errorResponse(app, c, err)
		}
		w, err := s.AddWidget(raw)
		if err != nil {
			return errorResponse(app, c, err)
		}
		return c.JSONPretty(http.StatusCreated, w, "  ")
	}
}

func UpdateWidget(app *App) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, err := bindWidget(c)
		if err != nil {
			return invalidRequest(c, "Invalid request")
		}
		s, err := getSession(app, c)
		if err != nil {
			return errorResponse(app, c, err)
		}
		w, err := s.UpdateWidget(c.Param("wid"), raw)
		if err != nil {
			return errorResponse(app, c, err)
		}
		return c.JSONPretty(http.StatusOK, w, "  ")
	}
}

func RemoveWidget(app *App) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := getSession(app, c)
		if err != nil {
			return errorResponse(app, c, err)
		}
		if err := s.RemoveWidget(c.Param("wid")); err != nil {
			return errorResponse(app, c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func DuplicateWidget(app *App) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := getSession(app, c)
		if err != nil {
			return errorResponse(app, c, err)
		}
		w, err := s.DuplicateWidget(c.Param("wid"))
		if err != nil {
			return errorResponse(app, c, err)
		}
		return c.JSONPretty(http.StatusCreated, w, "  ")
	}
}

func ActivateWidget(app *App) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := getSession(app, c)
		if err != nil {
			return errorResponse(app, c, err)
		}
		if err := s.SetActiveWidget(c.Param("wid")); err != nil {
			return errorResponse(app, c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func RunWidget(app *App) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := getSession(app, c)
		if err != nil {
			return errorResponse(app, c, err)
		}
		if err := s.RunWidget(c.Param("wid")); err != nil {
			return errorResponse(app, c, err)
		}
		return c.NoContent(http.StatusAccepted)
	}
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-z0-9]+`)

func exportFilename(title string, format session.ExportFormat) string {
	name := strings.Trim(unsafeFilenameChars.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if name == "" {
		name = "widget"
	}
	return name + "." + string(format)
}

func ExportWidget(app *App) echo.HandlerFunc {
	return func(c echo.Context) error {
		format, err := session.ParseExportFormat(c.Param("format"))
		if err != nil {
			return errorResponse(app, c, err)
		}
		s, err := getSession(app, c)
		if err != nil {
			return errorResponse(app, c, err)
		}
		var buf bytes.Buffer
		title, err := s.ExportWidget(c.Param("wid"), format, &buf)
		if err != nil {
			return errorResponse(app, c, err)
		}
		c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", exportFilename(title, format)))
		return c.Blob(http.StatusOK, format.ContentType(), buf.Bytes())
	}
}
