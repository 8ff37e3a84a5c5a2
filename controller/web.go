package controller

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/facturier/backoffice/model"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type controller struct {
	model    *model.Store
	progress *progressHub
}

type appError struct {
	Code   string // stabiler, interner Fehlercode für Ops/Support
	Status int    // passender HTTP-Status
	Err    error  // ursprünglicher Fehler (wird nie an den Client gegeben)
	Public string // sicherer Text für Nutzer (optional)
}

func (e *appError) Error() string { return fmt.Sprintf("%s: %v", e.Code, e.Err) }
func (e *appError) Unwrap() error { return e.Err }

func ErrNotFound(err error) *appError {
	return &appError{Code: "NOT_FOUND", Status: http.StatusNotFound, Err: err}
}
func ErrInternal(err error) *appError {
	return &appError{Code: "INTERNAL", Status: http.StatusInternalServerError, Err: err}
}

// newRouter builds the echo application without starting it. Split from
// NewController so tests can exercise the full middleware chain.
func newRouter(store *model.Store) (*echo.Echo, *controller) {
	var logger *slog.Logger
	if store.Config.Mode == "development" {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.BodyLimit("5M"))
	e.Use(middleware.RequestID())
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		DisableStackAll:   false,
		DisablePrintStack: true,
	}))

	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			req := c.Request()
			res := c.Response()
			rid := res.Header().Get(echo.HeaderXRequestID)

			// Request-scoped Logger bauen und in den Context legen
			reqLogger := logger.With(
				"request_id", rid,
			).WithGroup("http").With(
				"method", req.Method,
				"path", req.URL.Path,
				"remote_ip", c.RealIP(),
			)
			c.Set("logger", reqLogger)

			err := next(c)

			if shouldSkipAccessLog(c) {
				return err
			}
			latency := time.Since(start)

			attrs := []any{
				"status", res.Status,
				"latency_ms", float64(latency.Microseconds()) / 1000.0,
			}

			switch {
			case res.Status >= 500:
				reqLogger.Error("http_request", attrs...)
			case res.Status >= 400:
				reqLogger.Warn("http_request", attrs...)
			default:
				reqLogger.Info("http_request", attrs...)
			}
			return err
		}
	})

	// Eigener HTTPErrorHandler: intern alles loggen, extern nur sichere Payload
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		l, _ := c.Get("logger").(*slog.Logger)
		if l == nil {
			l = logger
		}

		var ae *appError
		var he *echo.HTTPError
		switch {
		case errors.As(err, &ae):
			// schon unsere appError
		case errors.As(err, &he):
			public := ""
			if he.Code >= 400 && he.Code < 500 {
				public = fmt.Sprint(he.Message)
			}
			ae = &appError{
				Code:   httpStatusToCode(he.Code),
				Status: he.Code,
				Err:    fmt.Errorf("%v", he.Message),
				Public: public,
			}
		case errors.Is(err, echo.ErrNotFound):
			ae = ErrNotFound(err)
		case errors.Is(err, echo.ErrMethodNotAllowed):
			ae = &appError{Code: "METHOD_NOT_ALLOWED", Status: http.StatusMethodNotAllowed, Err: err}
		default:
			ae = ErrInternal(err)
		}

		attrs := []any{
			"status", ae.Status,
			"code", ae.Code,
			"error", ae.Err.Error(),
		}
		if ae.Status >= 500 {
			l.Error("handler_error", attrs...)
		} else {
			l.Warn("handler_error", attrs...)
		}

		if c.Response().Committed {
			return
		}
		_ = c.JSON(ae.Status, map[string]any{
			"error":      userMessage(ae),
			"error_code": ae.Code,
			"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
		})
	}

	cookieStore := sessions.NewCookieStore([]byte(store.Config.CookieSecret))
	cookieStore.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		// Secure: true, // in PROD mit HTTPS aktivieren
	}
	e.Use(session.Middleware(cookieStore))

	ctrl := &controller{
		model:    store,
		progress: newProgressHub(progressGracePeriod),
	}
	e.POST("/login", ctrl.login)
	e.GET("/logout", ctrl.logout)
	ctrl.factureInit(e)
	ctrl.exportInit(e)
	return e, ctrl
}

// NewController ist der Einstiegspunkt.
func NewController(store *model.Store) error {
	e, _ := newRouter(store)
	if err := e.Start(fmt.Sprintf(":%d", store.Config.Port)); err != nil {
		return fmt.Errorf("cannot start application %w", err)
	}
	return nil
}

func userMessage(ae *appError) string {
	if ae.Public != "" {
		return ae.Public
	}
	switch ae.Code {
	case "INVALID_INPUT":
		return "La saisie est invalide. Veuillez vérifier et réessayer."
	case "NOT_FOUND":
		return "La ressource demandée est introuvable."
	case "METHOD_NOT_ALLOWED":
		return "Cette méthode HTTP n'est pas prise en charge ici."
	case "UNAUTHORIZED":
		return "Authentification requise."
	default:
		return "Une erreur est survenue. Veuillez réessayer plus tard."
	}
}

func httpStatusToCode(status int) string {
	switch status {
	case 400:
		return "INVALID_INPUT"
	case 401:
		return "UNAUTHORIZED"
	case 403:
		return "FORBIDDEN"
	case 404:
		return "NOT_FOUND"
	case 405:
		return "METHOD_NOT_ALLOWED"
	default:
		if status >= 500 {
			return "INTERNAL"
		}
		return "ERROR"
	}
}

func shouldSkipAccessLog(c echo.Context) bool {
	p := c.Request().URL.Path
	if strings.HasPrefix(p, "/static/") || strings.HasPrefix(p, "/assets/") {
		return true
	}
	switch p {
	case "/favicon.ico", "/robots.txt", "/metrics":
		return true
	}
	ext := strings.ToLower(path.Ext(p))
	switch ext {
	case ".css", ".js", ".map", ".png", ".jpg", ".jpeg", ".svg", ".ico", ".webp":
		return true
	}
	m := c.Request().Method
	if m == http.MethodHead || m == http.MethodOptions {
		return true
	}
	return false
}
