// Package api implements the JSON HTTP API.
package api

import (
	"crypto/rand"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/heatwatch/heatwatch-go/internal/annotation"
	"github.com/heatwatch/heatwatch-go/internal/conf"
	"github.com/heatwatch/heatwatch-go/internal/datastore"
	"github.com/heatwatch/heatwatch-go/internal/errors"
	"github.com/heatwatch/heatwatch-go/internal/imagestore"
	"github.com/heatwatch/heatwatch-go/internal/inspection"
	"github.com/heatwatch/heatwatch-go/internal/logging"
	"github.com/heatwatch/heatwatch-go/internal/observability"
)

// Controller manages the API routes and handlers.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	Service  *inspection.Service
	Images   *imagestore.Store
	Settings *conf.Settings

	metrics   *observability.Metrics
	apiLogger *slog.Logger
}

// New creates the API controller and registers all routes on e.
func New(e *echo.Echo, svc *inspection.Service, images *imagestore.Store, settings *conf.Settings, metrics *observability.Metrics) *Controller {
	c := &Controller{
		Echo:      e,
		Service:   svc,
		Images:    images,
		Settings:  settings,
		metrics:   metrics,
		apiLogger: logging.ForService("api"),
	}

	e.Use(middleware.Recover())
	c.Group = e.Group("/api/v1")
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)

	routeInitializers := []struct {
		name string
		fn   func()
	}{
		{"transformer routes", c.initTransformerRoutes},
		{"inspection routes", c.initInspectionRoutes},
		{"annotation routes", c.initAnnotationRoutes},
		{"media routes", c.initMediaRoutes},
	}
	for _, initializer := range routeInitializers {
		initializer.fn()
		c.apiLogger.Debug("routes initialized", "group", initializer.name)
	}

	if c.metrics != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(c.metrics.Handler()))
	}
}

// HealthCheck reports service liveness.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ErrorResponse is the JSON body returned for any failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse creates an API error response with a fresh correlation ID.
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
}

func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError logs an error and writes the standard error response. Known
// error categories are mapped to more specific status codes than the
// handler's default.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	switch {
	case errors.Is(err, datastore.ErrNotFound),
		errors.Is(err, imagestore.ErrNotFound),
		errors.Is(err, annotation.ErrNotDeleted):
		code = http.StatusNotFound
	case isCategory(err, errors.CategoryNotFound):
		code = http.StatusNotFound
	case isCategory(err, errors.CategoryValidation):
		code = http.StatusBadRequest
	}

	resp := NewErrorResponse(err, message, code)
	c.apiLogger.Error("request failed",
		"correlation_id", resp.CorrelationID,
		"message", message,
		"error", resp.Error,
		"code", code,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method,
		"ip", ctx.RealIP())
	return ctx.JSON(code, resp)
}

func isCategory(err error, category errors.ErrorCategory) bool {
	var enhanced *errors.EnhancedError
	return errors.As(err, &enhanced) && enhanced.Category == category
}

func parseInspectionNo(ctx echo.Context) (uint, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		return 0, errors.Newf("invalid inspection number %q", ctx.Param("id")).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	return uint(id), nil
}
