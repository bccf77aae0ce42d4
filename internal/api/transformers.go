// transformers.go: transformer CRUD and baseline image handlers.
package api

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/heatwatch/heatwatch-go/internal/datastore"
)

// initTransformerRoutes registers transformer-related routes.
func (c *Controller) initTransformerRoutes() {
	g := c.Group.Group("/transformers")
	g.GET("", c.ListTransformers)
	g.POST("", c.CreateTransformer)
	g.GET("/:no", c.GetTransformer)
	g.PUT("/:no", c.UpdateTransformer)
	g.DELETE("/:no", c.DeleteTransformer)
	g.POST("/:no/baseline-image", c.UploadBaselineImage)
	g.GET("/:no/inspections", c.ListTransformerInspections)
}

// ListTransformers returns all transformers.
func (c *Controller) ListTransformers(ctx echo.Context) error {
	transformers, err := c.Service.ListTransformers()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list transformers", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, transformers)
}

// CreateTransformer creates a new transformer record.
func (c *Controller) CreateTransformer(ctx echo.Context) error {
	var t datastore.Transformer
	if err := ctx.Bind(&t); err != nil {
		return c.HandleError(ctx, err, "Invalid transformer payload", http.StatusBadRequest)
	}
	if err := c.Service.CreateTransformer(&t); err != nil {
		return c.HandleError(ctx, err, "Failed to create transformer", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusCreated, t)
}

// GetTransformer returns one transformer by number.
func (c *Controller) GetTransformer(ctx echo.Context) error {
	t, err := c.Service.GetTransformer(ctx.Param("no"))
	if err != nil {
		return c.HandleError(ctx, err, "Transformer not found", http.StatusNotFound)
	}
	return ctx.JSON(http.StatusOK, t)
}

// UpdateTransformer updates a transformer's metadata.
func (c *Controller) UpdateTransformer(ctx echo.Context) error {
	var t datastore.Transformer
	if err := ctx.Bind(&t); err != nil {
		return c.HandleError(ctx, err, "Invalid transformer payload", http.StatusBadRequest)
	}
	t.TransformerNo = ctx.Param("no")
	if err := c.Service.UpdateTransformer(&t); err != nil {
		return c.HandleError(ctx, err, "Failed to update transformer", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, t)
}

// DeleteTransformer removes a transformer and its inspections.
func (c *Controller) DeleteTransformer(ctx echo.Context) error {
	if err := c.Service.DeleteTransformer(ctx.Param("no")); err != nil {
		return c.HandleError(ctx, err, "Failed to delete transformer", http.StatusInternalServerError)
	}
	return ctx.NoContent(http.StatusNoContent)
}

// UploadBaselineImage accepts a multipart baseline image upload.
func (c *Controller) UploadBaselineImage(ctx echo.Context) error {
	data, filename, err := readUpload(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid image upload", http.StatusBadRequest)
	}
	t, err := c.Service.UploadBaselineImage(ctx.Param("no"), data, filename, ctx.FormValue("weather"))
	if err != nil {
		return c.HandleError(ctx, err, "Failed to store baseline image", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, t)
}

// ListTransformerInspections returns the inspections of one transformer,
// newest first.
func (c *Controller) ListTransformerInspections(ctx echo.Context) error {
	inspections, err := c.Service.ListInspections(ctx.Param("no"))
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list inspections", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, inspections)
}

// readUpload extracts the "file" part of a multipart upload.
func readUpload(ctx echo.Context) (data []byte, filename string, err error) {
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return nil, "", err
	}
	src, err := fileHeader.Open()
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = src.Close() }()
	data, err = io.ReadAll(src)
	if err != nil {
		return nil, "", err
	}
	return data, fileHeader.Filename, nil
}
