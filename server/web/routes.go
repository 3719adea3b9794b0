// SPDX-License-Identifier: MPL-2.0

package web

import (
	"fmt"
	"net/http"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo-contrib/echoprometheus"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"vizboard/server/web/handler"
)

func routes(e *echo.Echo, config Config, app *handler.App) {
	e.HEAD("/", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.GET("/health", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.HEAD("/health", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if config.Registry != nil {
		e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: config.Registry}))
	} else {
		e.GET("/metrics", echoprometheus.NewHandler())
	}

	e.GET("/api/system/config", handler.GetSystemConfig(app))

	api := e.Group("/api")
	if len(config.JWTSecret) > 0 {
		api.Use(echojwt.WithConfig(echojwt.Config{
			// Browsers cannot set headers on websocket requests.
			TokenLookup: "header:Authorization:Bearer ,query:token",
			KeyFunc:     GetJWTKeyfunc(config.JWTSecret),
		}))
	} else {
		app.Logger.Warn("No JWT secret configured. Authentication is disabled. Make sure you don't expose the API publicly.")
	}

	api.GET("/dashboards", handler.ListDashboards(app))
	api.POST("/sessions", handler.OpenSession(app))
	api.GET("/sessions/:sid", handler.GetSession(app))
	api.DELETE("/sessions/:sid", handler.CloseSession(app))
	api.GET("/sessions/:sid/events", handler.SessionEvents(app))
	api.POST("/sessions/:sid/dashboard/new", handler.NewDraft(app))
	api.POST("/sessions/:sid/dashboard/load", handler.LoadDashboard(app))
	api.PATCH("/sessions/:sid/dashboard", handler.UpdateDashboard(app))
	api.POST("/sessions/:sid/dashboard/save", handler.SaveDashboard(app))
	api.DELETE("/sessions/:sid/dashboard", handler.DeleteDashboard(app))
	api.POST("/sessions/:sid/widgets", handler.AddWidget(app))
	api.PUT("/sessions/:sid/widgets/:wid", handler.UpdateWidget(app))
	api.DELETE("/sessions/:sid/widgets/:wid", handler.RemoveWidget(app))
	api.POST("/sessions/:sid/widgets/:wid/duplicate", handler.DuplicateWidget(app))
	api.POST("/sessions/:sid/widgets/:wid/activate", handler.ActivateWidget(app))
	api.POST("/sessions/:sid/widgets/:wid/run", handler.RunWidget(app))
	api.GET("/sessions/:sid/widgets/:wid/export/:format", handler.ExportWidget(app))
	api.POST("/sessions/:sid/run", handler.RunAll(app))
	api.POST("/sessions/:sid/copilot", handler.Copilot(app))
}

func GetJWTKeyfunc(secret []byte) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != echojwt.AlgorithmHS256 {
			return nil, &echojwt.TokenError{Token: token, Err: fmt.Errorf("unexpected jwt signing method=%v", token.Header["alg"])}
		}
		return secret, nil
	}
}
