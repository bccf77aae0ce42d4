// inspections.go: inspection CRUD, image upload and detector analysis
// handlers.
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/heatwatch/heatwatch-go/internal/datastore"
	"github.com/heatwatch/heatwatch-go/internal/errors"
)

// initInspectionRoutes registers inspection-related routes.
func (c *Controller) initInspectionRoutes() {
	g := c.Group.Group("/inspections")
	g.GET("", c.ListInspections)
	g.POST("", c.CreateInspection)
	g.GET("/:id", c.GetInspection)
	g.PUT("/:id", c.UpdateInspection)
	g.DELETE("/:id", c.DeleteInspection)
	g.POST("/:id/image", c.UploadMaintenanceImage)
	g.DELETE("/:id/image", c.DeleteMaintenanceImage)
	g.POST("/:id/reanalyze", c.Reanalyze)
}

// ListInspections returns all inspections, optionally filtered by the
// transformer query parameter.
func (c *Controller) ListInspections(ctx echo.Context) error {
	inspections, err := c.Service.ListInspections(ctx.QueryParam("transformer"))
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list inspections", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, inspections)
}

// CreateInspection creates a new inspection record.
func (c *Controller) CreateInspection(ctx echo.Context) error {
	var i datastore.Inspection
	if err := ctx.Bind(&i); err != nil {
		return c.HandleError(ctx, err, "Invalid inspection payload", http.StatusBadRequest)
	}
	if err := c.Service.CreateInspection(&i); err != nil {
		return c.HandleError(ctx, err, "Failed to create inspection", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusCreated, i)
}

// GetInspection returns one inspection by number.
func (c *Controller) GetInspection(ctx echo.Context) error {
	id, err := parseInspectionNo(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid inspection number", http.StatusBadRequest)
	}
	i, err := c.Service.GetInspection(id)
	if err != nil {
		return c.HandleError(ctx, err, "Inspection not found", http.StatusNotFound)
	}
	return ctx.JSON(http.StatusOK, i)
}

// UpdateInspection updates an inspection's metadata.
func (c *Controller) UpdateInspection(ctx echo.Context) error {
	id, err := parseInspectionNo(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid inspection number", http.StatusBadRequest)
	}
	var i datastore.Inspection
	if err := ctx.Bind(&i); err != nil {
		return c.HandleError(ctx, err, "Invalid inspection payload", http.StatusBadRequest)
	}
	i.InspectionNo = id
	if err := c.Service.UpdateInspection(&i); err != nil {
		return c.HandleError(ctx, err, "Failed to update inspection", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, i)
}

// DeleteInspection removes an inspection.
func (c *Controller) DeleteInspection(ctx echo.Context) error {
	id, err := parseInspectionNo(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid inspection number", http.StatusBadRequest)
	}
	if err := c.Service.DeleteInspection(id); err != nil {
		return c.HandleError(ctx, err, "Failed to delete inspection", http.StatusInternalServerError)
	}
	return ctx.NoContent(http.StatusNoContent)
}

// UploadMaintenanceImage accepts a multipart maintenance image upload.
// Analysis runs in the background; the response carries the inspection in
// its pending state.
func (c *Controller) UploadMaintenanceImage(ctx echo.Context) error {
	id, err := parseInspectionNo(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid inspection number", http.StatusBadRequest)
	}
	data, filename, err := readUpload(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid image upload", http.StatusBadRequest)
	}
	i, err := c.Service.UploadMaintenanceImage(id, data, filename, ctx.FormValue("weather"))
	if err != nil {
		return c.HandleError(ctx, err, "Failed to store maintenance image", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusAccepted, i)
}

// DeleteMaintenanceImage removes the maintenance image and the analysis
// derived from it.
func (c *Controller) DeleteMaintenanceImage(ctx echo.Context) error {
	id, err := parseInspectionNo(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid inspection number", http.StatusBadRequest)
	}
	i, err := c.Service.DeleteMaintenanceImage(id)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to delete maintenance image", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, i)
}

// Reanalyze re-runs detector analysis with the confidence query parameter,
// defaulting to the configured threshold.
func (c *Controller) Reanalyze(ctx echo.Context) error {
	id, err := parseInspectionNo(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid inspection number", http.StatusBadRequest)
	}
	confidence := c.Settings.Detector.DefaultConfidence
	if raw := ctx.QueryParam("confidence"); raw != "" {
		confidence, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			parseErr := errors.Newf("invalid confidence %q", raw).
				Component("api").
				Category(errors.CategoryValidation).
				Build()
			return c.HandleError(ctx, parseErr, "Invalid confidence threshold", http.StatusBadRequest)
		}
	}
	i, err := c.Service.Reanalyze(ctx.Request().Context(), id, confidence)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to reanalyze inspection", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, i)
}
