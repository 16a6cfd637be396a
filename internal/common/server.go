package common

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// HealthPath is the probe route; it is excluded from request logging
const HealthPath = "/health"

// FallbackPath is where unknown routes are sent
const FallbackPath = "/"

// ErrorResponse is the JSON body of every API error
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer creates the echo instance shared by all services
func NewServer(bodyLimit string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = HTTPErrorHandler

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == HealthPath
		},
		LogStatus:    true,
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogError:     true,
		LogRemoteIP:  true,
		LogUserAgent: true,
		LogRoutePath: true,
		HandleError:  false,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				log.Printf("%s %s (route=%s) - Status: %d - Latency: %v - Error: %v - RemoteIP: %s - UA: %s",
					v.Method,
					v.URI,
					v.RoutePath,
					v.Status,
					v.Latency,
					v.Error,
					v.RemoteIP,
					v.UserAgent,
				)
			} else {
				log.Printf("%s %s (route=%s) - Status: %d - Latency: %v - RemoteIP: %s - UA: %s",
					v.Method,
					v.URI,
					v.RoutePath,
					v.Status,
					v.Latency,
					v.RemoteIP,
					v.UserAgent,
				)
			}
			return nil
		},
	}))

	e.Use(middleware.Recover())
	e.Pre(middleware.RemoveTrailingSlash())
	if bodyLimit != "" {
		e.Use(middleware.BodyLimit(bodyLimit))
	}

	e.Validator = NewGenericEchoValidator()

	return e
}

// HTTPErrorHandler redirects unmatched routes to the login page and renders every
// other error as {"error": message}.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := http.StatusText(code)
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Internal != nil {
			var inner *echo.HTTPError
			if errors.As(httpErr.Internal, &inner) {
				httpErr = inner
			}
		}
		code = httpErr.Code
		message = fmt.Sprint(httpErr.Message)
	} else {
		slog.Error("HTTPErrorHandler: unhandled error", "path", c.Request().URL.Path, "error", err)
	}

	var writeErr error
	switch {
	case code == http.StatusNotFound && isRouteMiss(httpErr):
		writeErr = c.Redirect(http.StatusFound, FallbackPath)
	case c.Request().Method == http.MethodHead:
		writeErr = c.NoContent(code)
	default:
		writeErr = c.JSON(code, ErrorResponse{Error: message})
	}
	if writeErr != nil {
		slog.Error("HTTPErrorHandler: failed to write error response", "error", writeErr)
	}
}

// isRouteMiss reports whether the error is echo's own "route not found"
func isRouteMiss(err *echo.HTTPError) bool {
	return err == echo.ErrNotFound
}
