// SPDX-License-Identifier: MPL-2.0

package web

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	slogecho "github.com/samber/slog-echo"
	"golang.org/x/crypto/acme/autocert"

	"vizboard/server/web/handler"
)

type Config struct {
	Name        string
	Addr        string
	JWTSecret   []byte
	TLSDomain   string
	TLSEmail    string
	TLSCacheDir string
	HTTPSHost   string
	// Registry replaces the default prometheus registry when set.
	Registry *prometheus.Registry
}

// New builds the echo instance with middlewares and routes.
func New(config Config, app *handler.App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middlewares
	e.Use(slogecho.New(app.Logger.WithGroup("web")))
	e.Use(middleware.BodyLimit("2M"))
	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		// Websocket connections get hijacked.
		Skipper: func(c echo.Context) bool {
			return strings.HasSuffix(c.Path(), "/events")
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
		HSTSMaxAge:         2592000, // 30 days
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
	}))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1 << 10, // 1 KB
		LogLevel:  log.ERROR,
	}))
	promConfig := echoprometheus.MiddlewareConfig{Subsystem: config.Name}
	if config.Registry != nil {
		promConfig.Registerer = config.Registry
	}
	e.Use(echoprometheus.NewMiddlewareWithConfig(promConfig))

	routes(e, config, app)
	return e
}

// Start runs the web server in the background. With a TLS domain
// certificates come from Let's Encrypt and port 80 only redirects.
func Start(config Config, app *handler.App) (*echo.Echo, *http.Server) {
	e := New(config, app)

	var httpRedirectServer *http.Server
	if config.TLSDomain != "" {
		e.AutoTLSManager.HostPolicy = autocert.HostWhitelist(config.TLSDomain)
		if config.TLSCacheDir != "" {
			e.AutoTLSManager.Cache = autocert.DirCache(config.TLSCacheDir)
		}
		if config.TLSEmail != "" {
			e.AutoTLSManager.Email = config.TLSEmail
		}
		httpRedirectServer = &http.Server{
			Addr:    ":80",
			Handler: e.AutoTLSManager.HTTPHandler(nil),
		}
		go func() {
			if err := httpRedirectServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				app.Logger.Error("Error starting HTTP redirect server", slog.Any("error", err))
			}
		}()
		go func() {
			if err := e.StartAutoTLS(config.HTTPSHost + ":443"); err != nil && err != http.ErrServerClosed {
				e.Logger.Fatal("Error starting HTTPS server", err)
			}
		}()
		app.Logger.Info("Web server listening on ports 80 and 443 with automatic TLS via letsencrypt", slog.String("domain", config.TLSDomain))
		return e, httpRedirectServer
	}

	go func() {
		if err := e.Start(config.Addr); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("Error starting HTTP server", err)
		}
	}()
	app.Logger.Info("Web server is listening at " + config.Addr)
	return e, nil
}
